package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/cache"
	"github.com/procurement/backend/internal/infrastructure/config"
	"github.com/procurement/backend/internal/infrastructure/event"
	"github.com/procurement/backend/internal/infrastructure/lock"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"github.com/procurement/backend/internal/infrastructure/notify"
	"github.com/procurement/backend/internal/infrastructure/persistence"
	"github.com/procurement/backend/internal/infrastructure/pricelist"
	"github.com/procurement/backend/internal/infrastructure/scheduler"
	"github.com/procurement/backend/internal/infrastructure/telemetry"
	"github.com/procurement/backend/internal/interfaces/http/handler"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
	"github.com/procurement/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	shutdownTimeout = 30 * time.Second
	webhookRetries  = 2
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Bootstrap logger, replaced once telemetry can bridge logs to OTEL
	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	otel, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	log := bootLog
	if otel.Enabled() {
		level, _ := zapcore.ParseLevel(cfg.Log.Level)
		if log, err = logger.New(logCfg, otel.ZapCore(level)); err != nil {
			bootLog.Fatal("Failed to initialize logger", zap.Error(err))
		}
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting procurement backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if db.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem(db.Driver),
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", db.Driver))
	store := persistence.NewGormStore(db.DB)

	metrics, err := telemetry.NewProcurementMetrics(otel.Meter())
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Redis backs the shop locks and cache broadcasts when enabled
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		}
	}

	locker, err := newLocker(cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create shop locker", zap.Error(err))
	}

	readCache, broadcaster := newReadCache(cfg, redisClient, metrics, log)
	if broadcaster != nil {
		go func() {
			err := broadcaster.Subscribe(ctx, readCache.ApplyRemote)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Cache invalidation subscription ended", zap.Error(err))
			}
		}()
	}

	// Lifecycle notifications
	dispatcher := event.NewAsyncDispatcher(log, event.WithHandlerTimeout(cfg.Notify.Timeout))
	closeNotifiers := subscribeNotifiers(cfg, dispatcher, log)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("Failed to start event dispatcher", zap.Error(err))
	}

	// Application services
	codec := pricelist.NewCodec(pricelist.WithMaxSize(cfg.Ingestion.MaxDocSize))
	fetcher := pricelist.NewFetcher(pricelist.FetcherConfig{
		Timeout: cfg.Ingestion.FetchTimeout,
		MaxSize: cfg.Ingestion.MaxDocSize,
		Retries: cfg.Ingestion.FetchRetries,
	}, log)
	reconciler := catalogapp.NewReconciler(store, locker, log)
	ingestion := catalogapp.NewIngestionService(store, reconciler, codec, readCache, log,
		catalogapp.WithFetcher(fetcher),
		catalogapp.WithIngestionMetrics(metrics))
	query := catalogapp.NewQueryService(store.Shops(), store.Categories(), store.Listings(), readCache, log)
	shops := catalogapp.NewShopService(store, locker, readCache, log)
	baskets := tradeapp.NewBasketService(store, log)
	contacts := tradeapp.NewContactService(store.Contacts(), log)
	orders := tradeapp.NewOrderService(store, locker, readCache, log,
		tradeapp.WithEventPublisher(dispatcher),
		tradeapp.WithOrderMetrics(metrics))

	// Feed sync
	var (
		feedScheduler *scheduler.Scheduler
		cronTrigger   *scheduler.CronTrigger
	)
	if cfg.Scheduler.Enabled {
		feedScheduler = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Enabled:           true,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, scheduler.NewFeedSyncExecutor(ingestion, log), log)
		if err := feedScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start feed scheduler", zap.Error(err))
		}
		cronTrigger, err = scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
			Schedule:   cfg.Scheduler.FeedSyncSchedule,
			MaxRetries: cfg.Scheduler.RetryAttempts,
		}, feedScheduler, store.Shops(), log)
		if err != nil {
			log.Fatal("Failed to create feed sync trigger", zap.Error(err))
		}
		if err := cronTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start feed sync trigger", zap.Error(err))
		}
	}

	// HTTP
	engine := newEngine(cfg, log)
	checks := []handler.HealthCheck{{Name: "database", Check: func(context.Context) error { return db.Ping() }}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	system := handler.NewSystemHandler(version, checks...)
	engine.GET("/health", system.Health)
	engine.GET("/api/v1/ping", system.Ping)

	router.NewRouter(engine).Register(router.APIGroups(router.Handlers{
		Partner:    handler.NewPartnerHandler(ingestion, shops, orders),
		Catalog:    handler.NewCatalogHandler(query),
		Basket:     handler.NewBasketHandler(baskets),
		Contact:    handler.NewContactHandler(contacts),
		Order:      handler.NewOrderHandler(orders),
		CacheAdmin: handler.NewCacheAdminHandler(readCache),
	})...).Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cronTrigger != nil {
		if err := cronTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping feed sync trigger", zap.Error(err))
		}
	}
	if feedScheduler != nil {
		if err := feedScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping feed scheduler", zap.Error(err))
		}
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event dispatcher", zap.Error(err))
	}
	closeNotifiers()
	if broadcaster != nil {
		_ = broadcaster.Close()
	}
	_ = readCache.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := otel.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newLocker(cfg *config.Config, client *redis.Client, log *zap.Logger) (shared.KeyedLocker, error) {
	switch cfg.Lock.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("lock backend redis requires redis.enabled")
		}
		return lock.NewRedisLocker(client, cfg.Lock.TTL,
			lock.WithTimeout(cfg.Lock.Timeout),
			lock.WithLogger(log)), nil
	case "", "memory":
		return lock.NewMemoryLocker(
			lock.WithTimeout(cfg.Lock.Timeout),
			lock.WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Lock.Backend)
	}
}

// newReadCache creates the cache coordinator. With Redis enabled,
// invalidations are broadcast to and received from other instances.
func newReadCache(cfg *config.Config, client *redis.Client, metrics cache.Metrics, log *zap.Logger) (*cache.Coordinator, *cache.RedisInvalidationBroadcaster) {
	opts := []cache.Option{
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithAuditSize(cfg.Cache.AuditSize),
		cache.WithMetrics(metrics),
		cache.WithLogger(log),
	}
	if client == nil {
		return cache.NewCoordinator(opts...), nil
	}

	hostname, _ := os.Hostname()
	origin := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	broadcaster := cache.NewRedisInvalidationBroadcaster(client, origin,
		cache.WithChannel(cfg.Cache.BroadcastChannel),
		cache.WithBroadcasterLogger(log))
	opts = append(opts, cache.WithOrigin(origin), cache.WithBroadcaster(broadcaster))
	return cache.NewCoordinator(opts...), broadcaster
}

// subscribeNotifiers registers the configured lifecycle notifiers and returns
// a func releasing their connections
func subscribeNotifiers(cfg *config.Config, dispatcher *event.AsyncDispatcher, log *zap.Logger) func() {
	dispatcher.Subscribe(notify.NewLogNotifier(log))

	if cfg.Notify.Webhook.Enabled {
		dispatcher.Subscribe(notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.Notify.Webhook.URL,
			Secret:  cfg.Notify.Webhook.Secret,
			Timeout: cfg.Notify.Timeout,
			Retries: webhookRetries,
		}, log))
		log.Info("Webhook notifier enabled", zap.String("url", cfg.Notify.Webhook.URL))
	}

	if !cfg.Notify.RabbitMQ.Enabled {
		return func() {}
	}
	publisher, err := notify.NewRabbitMQPublisher(notify.RabbitMQConfig{
		URL:            cfg.Notify.RabbitMQ.URL,
		Exchange:       cfg.Notify.RabbitMQ.Exchange,
		RoutingKey:     cfg.Notify.RabbitMQ.RoutingKey,
		ConfirmTimeout: cfg.Notify.Timeout,
	}, log)
	if err != nil {
		// orders are still placed and transitioned without the broker
		log.Error("RabbitMQ notifier disabled", zap.Error(err))
		return func() {}
	}
	dispatcher.Subscribe(publisher)
	log.Info("RabbitMQ notifier enabled", zap.String("exchange", cfg.Notify.RabbitMQ.Exchange))
	return func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Error closing RabbitMQ publisher", zap.Error(err))
		}
	}
}

func newEngine(cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
			SkipPaths:   []string{"/health"},
		}),
		logger.GinMiddleware(log),
		middleware.SpanErrorMarker(),
		middleware.Secure(),
		middleware.CORSWithConfig(cors),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	return engine
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}
