package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/engine"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	Engine         *engine.Engine  // sync engine driven by the handlers
	RedisClient    *redis.Client   // nil when running on the memory store
	RequestTimeout time.Duration   // per-request timeout for non-streaming routes
	PingInterval   time.Duration   // WebSocket keepalive interval (default: 30s)
	Closing        <-chan struct{} // closed on server shutdown, ends state streams
	SeedTrigger    chan struct{}   // manual seed reload (nil if seed import is disabled)
}
