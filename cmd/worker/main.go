package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/berth-ops/notify-api/internal/config"
	"github.com/berth-ops/notify-api/internal/provider"
	"github.com/berth-ops/notify-api/internal/repository"
	"github.com/berth-ops/notify-api/internal/repository/memory"
	"github.com/berth-ops/notify-api/internal/repository/postgres"
	"github.com/berth-ops/notify-api/internal/secrets"
	"github.com/berth-ops/notify-api/internal/service/dispatch"
	eventService "github.com/berth-ops/notify-api/internal/service/event"
	historyService "github.com/berth-ops/notify-api/internal/service/history"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/messaging/redis"
	"github.com/berth-ops/notify-api/pkg/metrics"
	"github.com/berth-ops/notify-api/pkg/security"
)

// The worker consumes platform events from Redis and feeds them to the
// dispatcher. It shares storage with the API but has no admin surface.
func main() {
	// Load config
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
		log.Warn().Msg("using in-memory storage, the worker sees no channels configured through the API")
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

	// Initialize dispatcher
	httpClient := provider.NewHTTPClient()
	if cfg.Notifier.HTTPTimeout > 0 {
		httpClient.Timeout = cfg.Notifier.HTTPTimeout
	}
	registry := provider.NewRegistry(httpClient, appLogger.WithFields(map[string]interface{}{"component": "providers"}))
	m := metrics.NewMetrics("notify", "worker")

	historySvc := historyService.NewService(historyRepo, m, appLogger)
	dispatcher := dispatch.NewService(
		ruleRepo,
		channelRepo,
		resolver,
		registry,
		historySvc,
		dispatch.NewCache(cfg.Notifier.CacheTTL),
		m,
		appLogger,
		dispatch.Options{
			MaxAttempts: cfg.Notifier.RetryMaxAttempts,
			BaseDelay:   cfg.Notifier.RetryBaseDelay,
			CacheTTL:    cfg.Notifier.CacheTTL,
		},
	)
	emitter := eventService.NewEmitter(dispatcher, appLogger)

	// Initialize Redis broker
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

	// Setup health check and metrics endpoints
	setupHealthCheck(cfg.Notifier.WorkerHealthPort, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down worker...")
		cancel()
	}()

	log.Info().Str("channel", cfg.Notifier.EventsChannel).Msg("worker started")
	if err := bus.Run(ctx); err != nil {
		log.Error().Err(err).Msg("event bus stopped")
	}
	log.Info().Msg("worker exited properly")
}

func setupHealthCheck(port int, db *sqlx.DB) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
