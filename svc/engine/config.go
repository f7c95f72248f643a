package engine

import (
	"time"

	"github.com/sproutlabs/subsync/pkg/httpserver"
	"github.com/sproutlabs/subsync/pkg/mongo"
	"github.com/sproutlabs/subsync/pkg/pg"
	"github.com/sproutlabs/subsync/pkg/redis"
)

// Config holds everything needed to assemble the engine from the
// environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"subsync"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	HTTP  httpserver.Config
	PG    pg.Config
	Redis redis.Config
	Mongo mongo.Config

	MongoDatabase           string `env:"MONGODB_DATABASE" envDefault:"subsync"`
	RetentionCollection     string `env:"RETENTION_COLLECTION" envDefault:"chat_history"`
	NotificationsCollection string `env:"NOTIFICATIONS_COLLECTION" envDefault:"notifications"`

	// PlanCatalogPath optionally points to a YAML file overriding the
	// built-in plan catalog.
	PlanCatalogPath string `env:"PLAN_CATALOG_PATH"`

	WorkerConcurrency  int           `env:"WORKER_MAX_CONCURRENT_TASKS" envDefault:"4"`
	WorkerPullInterval time.Duration `env:"WORKER_PULL_INTERVAL" envDefault:"1s"`
}
