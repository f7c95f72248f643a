package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sproutlabs/subsync/svc/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := engine.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eng, err := engine.NewFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to assemble engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("engine stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
