package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/crewbill/keysvc/internal/application"
	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/internal/infrastructure/audit"
	"github.com/crewbill/keysvc/internal/infrastructure/cache"
	"github.com/crewbill/keysvc/internal/infrastructure/crypto"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/internal/infrastructure/persistence/postgres"
	"github.com/crewbill/keysvc/internal/infrastructure/ratelimit"
	redisinfra "github.com/crewbill/keysvc/internal/infrastructure/redis"
	"github.com/crewbill/keysvc/internal/infrastructure/secrets"
	"github.com/crewbill/keysvc/internal/interfaces/http/handlers"
	"github.com/crewbill/keysvc/internal/interfaces/http/router"
	"github.com/crewbill/keysvc/internal/scheduler"
	"github.com/crewbill/keysvc/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json"})

	cfg, err := config.LoadConfig(startupLogger)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	stopWatch, err := config.WatchConfig(appLogger, func(*config.Config) {
		appLogger.Info(context.Background(),
			"configuration file changed, settings apply on next restart")
	})
	if err != nil {
		appLogger.Warn(ctx, "config watcher unavailable", logger.Err(err))
	} else {
		defer stopWatch()
	}

	metrics := monitoring.NewMetrics()

	tracing, err := monitoring.NewTracingManager(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, "failed to initialize tracing", err)
		return
	}

	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Error(ctx, "failed to connect to database", err)
		return
	}

	keyRepo := postgres.NewKeyRepository(db)

	// The bootstrap secret comes from Vault when enabled, otherwise from
	// config. Either way it only seeds an empty store.
	var bootstrap secrets.StaticSecretSource
	if cfg.Vault.Enabled {
		bootstrap, err = secrets.NewVaultSource(&cfg.Vault, appLogger)
		if err != nil {
			appLogger.Error(ctx, "failed to create vault secret source", err)
			return
		}
	} else {
		bootstrap = secrets.NewConfigSource(cfg.Keys.StaticSecret)
	}

	initializer := application.NewInitializer(
		keyRepo, bootstrap, cfg.Keys.DefaultLifetime(), cfg.Keys.SigningAlgorithm(),
		appLogger, metrics,
	)

	keyCache := cache.NewKeyCache(keyRepo, initializer, cfg.Keys.CacheTTL(), appLogger, metrics)

	// Repair the store before serving: sweep expired actives and make sure
	// an active key exists.
	if _, err := initializer.EnsureActiveKey(ctx); err != nil {
		appLogger.Error(ctx, "startup self-heal failed", err)
		return
	}
	if err := keyCache.Refresh(ctx); err != nil {
		appLogger.Error(ctx, "initial cache refresh failed", err)
		return
	}

	primary := crypto.NewRotationBackedSource(keyCache)
	var fallback service.KeySource
	if cfg.Keys.StaticSecret != "" {
		fallback, err = crypto.NewStaticSource(cfg.Keys.StaticSecret, cfg.Keys.SigningAlgorithm())
		if err != nil {
			appLogger.Warn(ctx, "static fallback secret rejected, running without fallback",
				logger.Err(err))
		}
	}
	tokenService := crypto.NewJWTManager(primary, fallback, cfg.Keys.FallbackTolerance(), appLogger, metrics)

	var auditSink service.AuditService
	if cfg.Kafka.Enabled {
		auditSink, err = audit.NewKafkaProducer(cfg.Kafka, appLogger)
		if err != nil {
			appLogger.Error(ctx, "failed to create kafka audit producer", err)
			return
		}
	} else {
		auditSink = audit.NewLogAuditService(appLogger)
	}
	defer auditSink.Close()

	var invalidator *redisinfra.CacheInvalidator
	var redisClient goredis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewRedisClient(ctx, &cfg.Redis, appLogger)
		if err != nil {
			appLogger.Error(ctx, "failed to connect to redis", err)
			return
		}
		defer redisClient.Close()

		invalidator = redisinfra.NewCacheInvalidator(redisClient, cfg.Redis.Channel, appLogger)
		invalidator.Subscribe(ctx, keyCache)
		defer invalidator.Close()
	}

	var limiter *ratelimit.RedisRateLimiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisRateLimiter(
			redisClient, int64(cfg.Server.RateLimitPerMinute), time.Minute, appLogger)
	}

	var invalidatorSink service.CacheInvalidator
	if invalidator != nil {
		invalidatorSink = invalidator
	}

	rotationService := application.NewRotationService(
		keyRepo, keyCache, auditSink, invalidatorSink,
		cfg.Keys.DefaultLifetime(), cfg.Keys.RetentionWindow(), cfg.Keys.SigningAlgorithm(),
		appLogger, metrics,
	)

	healthService := application.NewHealthService(keyRepo, keyCache, cfg.Keys.CacheTTL(), appLogger, metrics)

	sched := scheduler.New(rotationService, cfg.Keys.RotationInterval(), cfg.Keys.MinRotationInterval(), appLogger)
	sched.Start(ctx)
	defer sched.Stop()

	keyHandler := handlers.NewKeyHandler(rotationService, appLogger)
	tokenHandler := handlers.NewTokenHandler(tokenService, appLogger)
	healthHandler := handlers.NewHealthHandler(healthService, appLogger)

	srv := router.NewRouter(cfg, appLogger, keyHandler, tokenHandler, healthHandler, tracing, metrics, limiter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			appLogger.Error(ctx, "http server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "http shutdown failed", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "tracing shutdown failed", err)
	}
}
