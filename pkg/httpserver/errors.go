package httpserver

import "errors"

var (
	// ErrStart is returned when the server fails to start or serve.
	ErrStart = errors.New("failed to run http server")

	// ErrShutdown is returned when graceful shutdown fails.
	ErrShutdown = errors.New("failed to shut down http server")
)
