package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Store kinds accepted by MARKSYNC_STORE.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Store    string // "redis" | "memory"
	Topic    string // change-event channel
	Identity string // identity signed in at startup (optional, empty = signed out)
	SeedFile string // Homepage bookmarks.yaml imported for Identity (optional)

	SeedInterval time.Duration // re-import interval for SeedFile (0 = startup and manual only)

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKSYNC_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MARKSYNC_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("MARKSYNC_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MARKSYNC_PRETTY_LOG", true),

		// Sync
		Store:    mustOneOf("MARKSYNC_STORE", StoreRedis, StoreRedis, StoreMemory),
		Topic:    getenv("MARKSYNC_TOPIC", domain.DefaultTopic),
		Identity: strings.TrimSpace(getenv("MARKSYNC_IDENTITY", "")),
		SeedFile: getenv("MARKSYNC_SEED_FILE", ""),

		SeedInterval: mustDuration("MARKSYNC_SEED_INTERVAL", 0),

		// Redis settings
		RedisUser:           getenv("MARKSYNC_REDIS_USERNAME", ""),
		RedisPassword:       getenv("MARKSYNC_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("MARKSYNC_REDIS_DB", 0),
		RedisDT:             mustDuration("MARKSYNC_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("MARKSYNC_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("MARKSYNC_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("MARKSYNC_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("MARKSYNC_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("MARKSYNC_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("MARKSYNC_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("MARKSYNC_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("MARKSYNC_REDIS_WARN_THRESHOLD", 3),
	}

	if cfg.Store == StoreRedis {
		cfg.RedisAddr = requireEnv("MARKSYNC_REDIS_ADDR")
	}

	if cfg.SeedFile != "" && cfg.Identity == "" {
		log.Printf("[WARN] MARKSYNC_SEED_FILE is set without MARKSYNC_IDENTITY, seed import disabled")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func mustOneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(getenv(key, def)))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	panic(fmt.Sprintf("❌ FATAL: Invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", ")))
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
