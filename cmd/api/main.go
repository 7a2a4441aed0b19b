package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/berth-ops/notify-api/internal/config"
	"github.com/berth-ops/notify-api/internal/handler"
	channelHandler "github.com/berth-ops/notify-api/internal/handler/channel"
	eventHandler "github.com/berth-ops/notify-api/internal/handler/event"
	historyHandler "github.com/berth-ops/notify-api/internal/handler/history"
	ruleHandler "github.com/berth-ops/notify-api/internal/handler/rule"
	"github.com/berth-ops/notify-api/internal/middleware"
	"github.com/berth-ops/notify-api/internal/provider"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/internal/repository/memory"
	"github.com/berth-ops/notify-api/internal/repository/postgres"
	"github.com/berth-ops/notify-api/internal/router"
	"github.com/berth-ops/notify-api/internal/secrets"
	channelService "github.com/berth-ops/notify-api/internal/service/channel"
	"github.com/berth-ops/notify-api/internal/service/dispatch"
	eventService "github.com/berth-ops/notify-api/internal/service/event"
	historyService "github.com/berth-ops/notify-api/internal/service/history"
	ruleService "github.com/berth-ops/notify-api/internal/service/rule"
	"github.com/berth-ops/notify-api/pkg/auth"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/messaging/redis"
	"github.com/berth-ops/notify-api/pkg/metrics"
	"github.com/berth-ops/notify-api/pkg/security"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize logging
	level, err := zerolog.ParseLevel(cfg.Monitoring.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	// Initialize storage
	var (
		db          *sqlx.DB
		channelRepo repository.ChannelRepository
		ruleRepo    repository.RuleRepository
		historyRepo repository.HistoryRepository
	)
	if cfg.Database.Driver == config.DriverMemory {
		channelRepo = memory.NewChannelRepository()
		ruleRepo = memory.NewRuleRepository()
		historyRepo = memory.NewHistoryRepository()
		log.Warn().Msg("using in-memory storage, configuration is lost on restart")
	} else {
		db, err = postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		base := postgres.NewBaseRepository(db)
		channelRepo = postgres.NewChannelRepository(base)
		ruleRepo = postgres.NewRuleRepository(base)
		historyRepo = postgres.NewHistoryRepository(base)
	}

	// Initialize config encryption
	masterKey := cfg.Notifier.MasterKey
	if masterKey == "" {
		masterKey = "berth-notify-dev-key"
		log.Warn().Msg("notifier master_key not set, using the development key")
	} else if cfg.Notifier.WeakMasterKey() {
		log.Warn().Msg("notifier master_key is shorter than 16 characters")
	}
	encryptor, err := security.NewAESEncryptor(security.DeriveKey(masterKey))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize config encryption")
	}
	resolver := secrets.NewResolver(encryptor, appLogger)

	// Initialize provider registry and metrics
	httpClient := provider.NewHTTPClient()
	if cfg.Notifier.HTTPTimeout > 0 {
		httpClient.Timeout = cfg.Notifier.HTTPTimeout
	}
	registry := provider.NewRegistry(httpClient, appLogger.WithFields(map[string]interface{}{"component": "providers"}))
	m := metrics.NewMetrics("notify", "api")

	// Initialize services
	historySvc := historyService.NewService(historyRepo, m, appLogger)
	dispatchCache := dispatch.NewCache(cfg.Notifier.CacheTTL)
	dispatcher := dispatch.NewService(
		ruleRepo,
		channelRepo,
		resolver,
		registry,
		historySvc,
		dispatchCache,
		m,
		appLogger,
		dispatch.Options{
			MaxAttempts: cfg.Notifier.RetryMaxAttempts,
			BaseDelay:   cfg.Notifier.RetryBaseDelay,
			CacheTTL:    cfg.Notifier.CacheTTL,
		},
	)
	channelSvc := channelService.NewService(channelRepo, ruleRepo, registry, resolver, dispatchCache, appLogger)
	ruleSvc := ruleService.NewService(ruleRepo, channelRepo, dispatchCache, appLogger)
	emitter := eventService.NewEmitter(dispatcher, appLogger)

	// Initialize auth middleware
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiry())
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Initialize handlers
	h := handler.NewHandler(db)
	eventH := eventHandler.NewHandler(emitter)
	channelH := channelHandler.NewHandler(channelSvc)
	ruleH := ruleHandler.NewHandler(ruleSvc)
	historyH := historyHandler.NewHandler(historySvc)

	// Setup router
	r := router.NewRouter(authMiddleware, eventH, channelH, ruleH, historyH, h, router.Config{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		RequestTimeout: cfg.Server.Timeout(),
		CORS:           middleware.DefaultCORSConfig(),
	})
	r.Setup()

	// Consume platform events from Redis when enabled. Deployments with a
	// dedicated worker leave this off to avoid double delivery.
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	if cfg.Redis.Enabled {
		brokerLogger := log.With().Str("component", "redis-broker").Logger()
		broker, err := redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &brokerLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()

		bus := eventService.NewBus(broker, emitter, cfg.Notifier.EventsChannel, m, appLogger)
		go func() {
			if err := bus.Run(busCtx); err != nil {
				log.Error().Err(err).Msg("event bus stopped")
			}
		}()
	}

	// Start server
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	stopBus()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
