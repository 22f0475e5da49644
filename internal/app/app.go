package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/engine"
	"github.com/MrSnakeDoc/marksync/internal/httpserver"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/redis"
	"github.com/MrSnakeDoc/marksync/internal/scheduler"
	"github.com/MrSnakeDoc/marksync/internal/sources/homepage"
	"github.com/MrSnakeDoc/marksync/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/marksync/internal/store/redis"
	"github.com/MrSnakeDoc/marksync/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	engine      *engine.Engine
	seeder      *scheduler.SeedReloader
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	var (
		gw          engine.Gateway
		redisClient *goredis.Client
	)
	switch cfg.Store {
	case config.StoreRedis:
		// Fail fast if Redis is unavailable
		client, err := redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			ClientName:     "marksync",
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		redisClient = client
		gw = redisstore.NewStore(client,
			redisstore.WithTopic(cfg.Topic),
			redisstore.WithLogger(loggerClient.With(logger.String("component", "store"))))
		loggerClient.Info("redis store initialized", logger.String("topic", cfg.Topic))

	case config.StoreMemory:
		gw = memory.NewStore(memory.WithTopic(cfg.Topic))
		loggerClient.Warn("using in-memory store, bookmarks are lost on restart")
	}

	eng := engine.New(gw,
		engine.WithTopic(cfg.Topic),
		engine.WithLogger(loggerClient.With(logger.String("component", "engine"))))

	// Seed reloader (if a seed file is configured for the startup identity)
	var seeder *scheduler.SeedReloader
	var seedTrigger chan struct{}
	if cfg.SeedFile != "" && cfg.Identity != "" {
		seedLog := loggerClient.With(logger.String("component", "seed"))
		seedTrigger = make(chan struct{}, 1)
		seeder = scheduler.NewSeedReloader(
			homepage.NewImporter(cfg.SeedFile, seedLog),
			eng,
			seedLog,
			cfg.SeedInterval,
			seedTrigger,
		)
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:      loggerClient,
		StartTime:   time.Now(),
		Version:     version.Version,
		Commit:      version.Commit,
		BuildDate:   version.BuildDate,
		GoVersion:   version.GoVersion,
		Engine:      eng,
		RedisClient: redisClient,
		SeedTrigger: seedTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		engine:      eng,
		seeder:      seeder,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting marksync v%s on %s (store=%s)", version.Version, a.cfg.ListenPort, a.cfg.Store)
	a.logger.Infof("marksync %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Identity != "" {
		a.engine.SetIdentity(ctx, a.cfg.Identity)
		st := a.engine.State()
		if st.Error != "" {
			a.logger.Warn("initial load failed, waiting for a manual refresh",
				logger.String("owner", a.cfg.Identity),
				logger.String("error", st.Error))
		}
	}

	if a.seeder != nil {
		if err := a.seeder.Start(ctx); err != nil {
			a.logger.Warn("seed import failed, fix the file and trigger a reload",
				logger.String("file", a.cfg.SeedFile), logger.Error(err))
		}
		a.logger.Info("seed reloader started", logger.Duration("interval", a.cfg.SeedInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		a.engine.Close()
		return err
	}

	if a.seeder != nil {
		a.seeder.Stop()
	}
	if st := a.engine.State(); st.Busy() {
		a.logger.Warn("shutting down with bookmark operations in flight",
			logger.Bool("adding", st.Adding),
			logger.Strings("removing", st.Removing))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Releases the subscription before its connection goes away.
	a.engine.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ marksync stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
