package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heishia/thread-auto/internal/api"
	threadconfig "github.com/heishia/thread-auto/internal/config"
	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/generator"
	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/internal/publish"
	"github.com/heishia/thread-auto/internal/scheduler"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/internal/styleref"
	"github.com/heishia/thread-auto/pkg/config"
	"github.com/heishia/thread-auto/pkg/database"
	"github.com/heishia/thread-auto/pkg/llm"
	"github.com/heishia/thread-auto/pkg/logging"
	"github.com/heishia/thread-auto/pkg/monitoring"
	"github.com/heishia/thread-auto/pkg/research"
	"github.com/heishia/thread-auto/pkg/server"
	"github.com/heishia/thread-auto/pkg/version"
)

const defaultEmbeddingDims = 768

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("threadauto")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Thread Auto (Threads Drafting and Publishing Service)")

	cfg := threadconfig.LoadConfig()

	// Connect to database. Without DATABASE_URL the service falls back to
	// in-memory stores and loses state on restart.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.DatabaseURL
		db = database.MustConnect(dbConfig, logger)
		defer func() { _ = db.Close() }()
	} else {
		logger.Warn("DATABASE_URL not set - running on in-memory stores")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("threadauto", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("threadauto", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LLM_API_KEY":          cfg.LLMAPIKey,
		"THREADS_ACCESS_TOKEN": cfg.ThreadsAccessToken,
	}))

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		APIURL:   cfg.LLMAPIURL,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize LLM provider - generation disabled")
		llmProvider = nil
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn("LLM_API_KEY not set - generation disabled")
		llmProvider = nil
	}

	embeddingClient, err := llm.NewEmbeddingClient(llm.Config{
		Provider: cfg.EmbeddingProvider,
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EmbeddingAPIKey,
		APIURL:   cfg.EmbeddingAPIURL,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize embedding client - style matching degraded")
		embeddingClient = nil
	}

	researcher, err := research.NewProvider(research.Config{
		Provider: cfg.ResearchProvider,
		APIKey:   cfg.ResearchAPIKey,
		APIURL:   cfg.ResearchAPIURL,
		Model:    cfg.ResearchModel,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize research provider - composing without research")
		researcher = research.NoopResearcher{}
	}

	ctx := context.Background()

	// Stores
	var (
		postStore     posts.Store
		settingsStore settings.Store
		styleStore    styleref.Store
	)
	if db != nil {
		postSQL := posts.NewSQLStore(db)
		if err := postSQL.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to ensure posts schema")
		}
		settingsSQL := settings.NewSQLStore(db)
		if err := settingsSQL.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to ensure settings schema")
		}
		styleSQL := styleref.NewSQLStore(db)
		dims := embeddingDims(ctx, cfg, embeddingClient, logger)
		if err := styleSQL.EnsureSchema(ctx, dims); err != nil {
			logger.WithError(err).Fatal("Failed to ensure style reference schema")
		}
		postStore = postSQL
		settingsStore = settingsSQL
		styleStore = styleSQL
	} else {
		postStore = posts.NewMemoryStore()
		settingsStore = settings.NewMemoryStore()
		styleStore = styleref.NewMemoryStore()
	}

	// Event fan-out
	bus := events.NewBus()
	hub := events.NewHub(bus, logger)
	go hub.Run()

	// Style references with in-memory similarity index
	styleService := styleref.NewService(embeddingClient, styleStore, logger)
	if err := styleService.LoadIndex(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load style reference index")
	}

	gen := generator.New(generator.Config{
		LLM:        llmProvider,
		Researcher: researcher,
		Styles:     styleService,
		Posts:      postStore,
		Settings:   settingsStore,
		Bus:        bus,
		Logger:     logger,
		StyleRefs:  cfg.StyleRefLimit,
	})

	var publisher publish.Publisher
	if cfg.ThreadsAccessToken != "" && cfg.ThreadsUserID != "" {
		publisher = publish.NewThreadsPublisher(publish.ThreadsConfig{
			AccessToken: cfg.ThreadsAccessToken,
			UserID:      cfg.ThreadsUserID,
			APIURL:      cfg.ThreadsAPIURL,
			Logger:      logger,
		})
	} else {
		logger.Warn("THREADS_ACCESS_TOKEN or THREADS_USER_ID not set - publishing disabled")
		publisher = publish.NewThreadsPublisher(publish.ThreadsConfig{Logger: logger})
	}

	coordinator := publish.NewCoordinator(publish.CoordinatorConfig{
		Publisher: publisher,
		Posts:     postStore,
		Styles:    styleService,
		Settings:  settingsStore,
		Bus:       bus,
		Logger:    logger,
	})
	if err := coordinator.RestorePending(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore pending publications")
	}

	sched := scheduler.New(scheduler.Config{
		AutoGenAction: func(ctx context.Context) error {
			result, err := gen.GenerateAuto(ctx, cfg.AutoGenBatchSize)
			if err != nil {
				return err
			}
			logger.WithFields(logging.Fields{
				"generated": len(result.Posts),
				"failed":    result.Failed,
			}).Info("Auto-generation batch finished")
			return nil
		},
		Settings: settingsStore,
		Bus:      bus,
		Logger:   logger,
	})
	seedSchedulerSettings(ctx, cfg, settingsStore, logger)
	if err := sched.Restore(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore scheduler timers")
	}

	// Setup router with unified monitoring (health/metrics only)
	router := server.SetupServiceRouter(logger, "threadauto", healthChecker, metricsCollector)
	handler := api.NewHandler(api.Config{
		Settings:    settingsStore,
		Posts:       postStore,
		Generator:   gen,
		Scheduler:   sched,
		Coordinator: coordinator,
		Styles:      styleService,
		Publisher:   publisher,
		Hub:         hub,
		APIKey:      cfg.APIKey,
		Logger:      logger,
	})
	handler.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("threadauto", cfg.Port)
	if err := server.StartWithShutdown(serverConfig, router, logger, func() {
		sched.Shutdown()
		coordinator.Shutdown()
		hub.Close()
	}); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

// seedSchedulerSettings applies env overrides for the timer classes before
// Restore starts them. Env only ever turns behavior on; a value a user set
// through the API is not reverted by a default env.
func seedSchedulerSettings(ctx context.Context, cfg threadconfig.Config, store settings.Store, logger logging.Logger) {
	update := settings.Update{}
	if cfg.AutoGenEnabled {
		enabled := true
		interval := int(cfg.AutoGenInterval.Minutes())
		update.AutoGenerateEnabled = &enabled
		update.AutoGenerateInterval = &interval
	}
	if !cfg.ReminderEnabled {
		disabled := false
		update.ReminderEnabled = &disabled
	}
	if update.AutoGenerateEnabled == nil && update.ReminderEnabled == nil {
		return
	}
	if _, err := store.Set(ctx, update); err != nil {
		logger.WithError(err).Warn("Failed to seed scheduler settings")
	}
}

// embeddingDims resolves the vector column width: explicit config wins, then
// a live probe of the embedding model, then a safe default.
func embeddingDims(ctx context.Context, cfg threadconfig.Config, client llm.EmbeddingClient, logger logging.Logger) int {
	if cfg.EmbeddingDimensions > 0 {
		return cfg.EmbeddingDimensions
	}
	if client != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		dims, err := llm.ProbeEmbeddingDimensions(probeCtx, client)
		if err == nil {
			return dims
		}
		logger.WithError(err).Warn("Embedding dimension probe failed - using default")
	}
	return defaultEmbeddingDims
}
