package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sproutlabs/subsync/pkg/billing"
	"github.com/sproutlabs/subsync/pkg/clock"
	"github.com/sproutlabs/subsync/pkg/config"
	"github.com/sproutlabs/subsync/pkg/httpserver"
	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/logger"
	"github.com/sproutlabs/subsync/pkg/mongo"
	"github.com/sproutlabs/subsync/pkg/notifications"
	"github.com/sproutlabs/subsync/pkg/pg"
	"github.com/sproutlabs/subsync/pkg/queue"
	"github.com/sproutlabs/subsync/pkg/redis"
	"github.com/sproutlabs/subsync/pkg/retention"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

// Queue and task names for the domain-event fan-out. Each consumer gets
// its own queue so a backlog in one never delays the other.
const (
	QueueRetention     = "retention"
	QueueNotifications = "notifications"

	TaskRetentionSync = "retention.plan_changed"
	TaskNotifyEvent   = "notifications.event"
)

// Deps are the storage and infrastructure dependencies the engine
// composes. Tests pass memory implementations; NewFromConfig wires the
// real ones.
type Deps struct {
	Subscriptions subscription.Store
	Dedup         billing.DedupStore
	Retention     retention.Store
	Notifications notifications.Storage
	QueueEnqueuer queue.EnqueuerRepository
	QueueWorker   queue.WorkerRepository
	Catalog       subscription.Catalog
	Clock         clock.Clock
	Log           *slog.Logger

	WorkerConcurrency  int
	WorkerPullInterval time.Duration
}

// Engine is the assembled subscription lifecycle engine: webhook
// router, access evaluator, and the queue workers consuming domain
// events.
type Engine struct {
	router    *billing.Router
	evaluator *Evaluator
	workers   []*queue.Worker
	httpCfg   *httpserver.Config
	log       *slog.Logger
	cleanup   []func() error
}

// New assembles an Engine from explicit dependencies.
func New(deps Deps) (*Engine, error) {
	if deps.Subscriptions == nil || deps.Dedup == nil || deps.Retention == nil ||
		deps.Notifications == nil || deps.QueueEnqueuer == nil || deps.QueueWorker == nil {
		return nil, errors.New("engine: all storage dependencies are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if err := deps.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	enqueuer, err := queue.NewEnqueuer(deps.QueueEnqueuer)
	if err != nil {
		return nil, fmt.Errorf("engine: create enqueuer: %w", err)
	}

	processor := lifecycle.NewProcessor(
		deps.Subscriptions, deps.Catalog,
		&fanoutSink{enqueuer: enqueuer},
		deps.Clock,
		lifecycle.WithLogger(deps.Log),
	)

	workerOpts := func(queues ...string) []queue.WorkerOption {
		opts := []queue.WorkerOption{
			queue.WithQueues(queues...),
			queue.WithWorkerLogger(deps.Log),
		}
		if deps.WorkerConcurrency > 0 {
			opts = append(opts, queue.WithMaxConcurrentTasks(deps.WorkerConcurrency))
		}
		if deps.WorkerPullInterval > 0 {
			opts = append(opts, queue.WithPullInterval(deps.WorkerPullInterval))
		}
		return opts
	}

	retentionWorker, err := queue.NewWorker(deps.QueueWorker, workerOpts(QueueRetention)...)
	if err != nil {
		return nil, fmt.Errorf("engine: create retention worker: %w", err)
	}
	retentionWorker.RegisterHandlers(queue.NewNamedTaskHandler(
		TaskRetentionSync,
		retention.NewHandler(deps.Retention, retention.WithLogger(deps.Log)).Handle,
	))

	notifyWorker, err := queue.NewWorker(deps.QueueWorker, workerOpts(QueueNotifications)...)
	if err != nil {
		return nil, fmt.Errorf("engine: create notifications worker: %w", err)
	}
	notifyWorker.RegisterHandlers(queue.NewNamedTaskHandler(
		TaskNotifyEvent,
		notifications.NewEmitter(deps.Notifications, notifications.WithLogger(deps.Log)).Handle,
	))

	return &Engine{
		router:    billing.NewRouter(deps.Dedup, processor, billing.WithRouterLogger(deps.Log)),
		evaluator: NewEvaluator(processor, deps.Catalog, deps.Clock, deps.Log),
		workers:   []*queue.Worker{retentionWorker, notifyWorker},
		log:       deps.Log,
	}, nil
}

// NewFromConfig assembles an Engine with production stores: PostgreSQL
// for subscriptions and the task queue (migrations applied on boot),
// Redis for event deduplication, Mongo for retention records and
// notifications.
func NewFromConfig(ctx context.Context, cfg Config) (*Engine, error) {
	log := logger.New(
		logger.WithService(cfg.ServiceName),
		logger.WithFormat(logger.Format(cfg.LogFormat)),
	)

	catalog := subscription.DefaultCatalog()
	if cfg.PlanCatalogPath != "" {
		var err error
		catalog, err = subscription.CatalogFromFile(cfg.PlanCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("engine: load plan catalog: %w", err)
		}
	}

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, fmt.Errorf("engine: connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return nil, fmt.Errorf("engine: migrate: %w", err)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("engine: connect redis: %w", err)
	}

	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("engine: connect mongo: %w", err)
	}

	dedup, err := billing.NewRedisDedupStore(redisClient)
	if err != nil {
		return nil, err
	}
	retentionStore, err := retention.NewMongoStore(db.Collection(cfg.RetentionCollection))
	if err != nil {
		return nil, err
	}
	notifStorage, err := notifications.NewMongoStorage(db.Collection(cfg.NotificationsCollection))
	if err != nil {
		return nil, err
	}
	queueStorage, err := queue.NewPGStorage(pool)
	if err != nil {
		return nil, err
	}

	eng, err := New(Deps{
		Subscriptions:      subscription.NewPGStore(pool),
		Dedup:              dedup,
		Retention:          retentionStore,
		Notifications:      notifStorage,
		QueueEnqueuer:      queueStorage,
		QueueWorker:        queueStorage,
		Catalog:            catalog,
		Clock:              clock.New(),
		Log:                log,
		WorkerConcurrency:  cfg.WorkerConcurrency,
		WorkerPullInterval: cfg.WorkerPullInterval,
	})
	if err != nil {
		return nil, err
	}

	httpCfg := cfg.HTTP
	eng.httpCfg = &httpCfg
	eng.cleanup = append(eng.cleanup,
		func() error { pool.Close(); return nil },
		redisClient.Close,
		func() error { return db.Client().Disconnect(context.Background()) },
	)
	return eng, nil
}

// LoadConfig reads the engine configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Router returns the inbound billing-event router.
func (e *Engine) Router() *billing.Router { return e.router }

// Evaluator returns the access evaluator.
func (e *Engine) Evaluator() *Evaluator { return e.evaluator }

// Run starts the queue workers and, when an HTTP address is configured,
// the HTTP surface. It blocks until the context is canceled or a
// component fails, then shuts everything down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, w := range e.workers {
		g.Go(w.Run(ctx))
	}

	if e.httpCfg != nil {
		cfg := *e.httpCfg
		g.Go(func() error {
			return httpserver.Run(ctx, cfg, e.Handler(), e.log)
		})
	}

	err := g.Wait()

	for _, closeFn := range e.cleanup {
		if cerr := closeFn(); cerr != nil {
			e.log.Error("cleanup failed", slog.String("error", cerr.Error()))
		}
	}
	return err
}

// fanoutSink delivers domain events to consumer queues. plan_changed
// goes to both retention and notifications; everything else only to
// notifications. payment_failed tasks are enqueued at high priority to
// match the notification urgency downstream.
type fanoutSink struct {
	enqueuer *queue.Enqueuer
}

func (s *fanoutSink) Emit(ctx context.Context, evt lifecycle.Event) error {
	if evt.Type == lifecycle.EventPlanChanged {
		if err := s.enqueuer.Enqueue(ctx, evt,
			queue.WithQueue(QueueRetention),
			queue.WithTaskName(TaskRetentionSync),
		); err != nil {
			return fmt.Errorf("enqueue retention task: %w", err)
		}
	}

	opts := []queue.EnqueueOption{
		queue.WithQueue(QueueNotifications),
		queue.WithTaskName(TaskNotifyEvent),
	}
	if evt.Type == lifecycle.EventPaymentFailed {
		opts = append(opts, queue.WithPriority(queue.PriorityHigh))
	}
	if err := s.enqueuer.Enqueue(ctx, evt, opts...); err != nil {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}
