package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/cache"
	"github.com/procurement/backend/internal/infrastructure/config"
	"github.com/procurement/backend/internal/infrastructure/lock"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"github.com/procurement/backend/internal/infrastructure/persistence"
	"github.com/procurement/backend/internal/infrastructure/pricelist"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// env is what a command needs from the server configuration
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *persistence.Database
	redis *redis.Client
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{
		Level:  c.String("log-level"),
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	e := &env{cfg: cfg, log: log}
	if cfg.Redis.Enabled {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return e, nil
}

func (e *env) openDatabase() (*persistence.Database, error) {
	db, err := persistence.NewDatabase(&e.cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(e.log, logger.MapGormLogLevel("warn"))))
	if err != nil {
		return nil, err
	}
	if db.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sqlite schema: %w", err)
		}
	}
	e.db = db
	return db, nil
}

// broadcaster publishes invalidations to running servers. It requires Redis.
func (e *env) broadcaster() (*cache.RedisInvalidationBroadcaster, error) {
	if e.redis == nil {
		return nil, fmt.Errorf("redis is not enabled; running servers cannot be reached")
	}
	return cache.NewRedisInvalidationBroadcaster(e.redis, "catalogctl",
		cache.WithChannel(e.cfg.Cache.BroadcastChannel),
		cache.WithBroadcasterLogger(e.log)), nil
}

// requireSharedCoordination fails unless writes from this process are
// serialized with running servers and reach their read caches
func (e *env) requireSharedCoordination() error {
	if e.redis == nil || e.cfg.Lock.Backend != "redis" {
		return fmt.Errorf("writing the catalog directly needs redis.enabled and lock.backend = \"redis\"; " +
			"pass --server to load through a running server instead")
	}
	return nil
}

// ingestion builds an IngestionService sharing the server's shop locks.
// Invalidations are forwarded to running servers when Redis is enabled.
func (e *env) ingestion() (*catalogapp.IngestionService, error) {
	db, err := e.openDatabase()
	if err != nil {
		return nil, err
	}
	store := persistence.NewGormStore(db.DB)

	var locker shared.KeyedLocker = lock.NewMemoryLocker(
		lock.WithTimeout(e.cfg.Lock.Timeout), lock.WithLogger(e.log))
	if e.cfg.Lock.Backend == "redis" && e.redis != nil {
		locker = lock.NewRedisLocker(e.redis, e.cfg.Lock.TTL,
			lock.WithTimeout(e.cfg.Lock.Timeout), lock.WithLogger(e.log))
	}

	opts := []cache.Option{cache.WithLogger(e.log)}
	if b, err := e.broadcaster(); err == nil {
		opts = append(opts, cache.WithBroadcaster(b))
	} else {
		e.log.Warn("Cache invalidations stay local", zap.Error(err))
	}
	invalidator := cache.NewCoordinator(opts...)

	fetcher := pricelist.NewFetcher(pricelist.FetcherConfig{
		Timeout: e.cfg.Ingestion.FetchTimeout,
		MaxSize: e.cfg.Ingestion.MaxDocSize,
		Retries: e.cfg.Ingestion.FetchRetries,
	}, e.log)
	codec := pricelist.NewCodec(pricelist.WithMaxSize(e.cfg.Ingestion.MaxDocSize))
	return catalogapp.NewIngestionService(store, catalogapp.NewReconciler(store, locker, e.log),
		codec, invalidator, e.log, catalogapp.WithFetcher(fetcher)), nil
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.log.Sync()
}
