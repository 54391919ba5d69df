package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronopost/chronopost/internal/api"
	"github.com/chronopost/chronopost/internal/auth"
	"github.com/chronopost/chronopost/internal/cloudsql"
	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/database"
	"github.com/chronopost/chronopost/internal/dedup"
	"github.com/chronopost/chronopost/internal/events"
	"github.com/chronopost/chronopost/internal/generator"
	"github.com/chronopost/chronopost/internal/inference"
	"github.com/chronopost/chronopost/internal/logging"
	"github.com/chronopost/chronopost/internal/media"
	"github.com/chronopost/chronopost/internal/metrics"
	"github.com/chronopost/chronopost/internal/pipeline"
	"github.com/chronopost/chronopost/internal/publisher"
	"github.com/chronopost/chronopost/internal/review"
	"github.com/chronopost/chronopost/internal/scheduler"
	"github.com/chronopost/chronopost/internal/server"
	"github.com/chronopost/chronopost/internal/verifier"
)

const (
	onThisDayFeedURL = "https://api.wikimedia.org/feed/v1/wikipedia/en/onthisday/events"
	wikipediaRestURL = "https://en.wikipedia.org/api/rest_v1"
	commonsAPIURL    = "https://commons.wikimedia.org/w/api.php"
	openverseAPIURL  = "https://api.openverse.org/v1/images"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting chronopost")

	// Connect to database (supports both local DATABASE_URL and Cloud SQL)
	dbURL, err := cloudsql.BuildDatabaseURL()
	if err != nil {
		logger.Error("failed to build database URL", "error", err)
		os.Exit(1)
	}
	logger.Info("database target resolved", "connection", cloudsql.ConnectionAttrs())

	dbCfg := database.DefaultConfig()
	dbCfg.URL = dbURL
	dbCfg.MaxConnections = cfg.Database.MaxConnections
	dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	ctx := context.Background()
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Run pending migrations (non-fatal to allow app to start even if migrations fail)
	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	// Repositories
	fingerprintRepo := database.NewFingerprintRepository(db)
	queueRepo := database.NewQueueRepository(db)
	ledgerRepo := database.NewMediaLedgerRepository(db)
	inferenceLogRepo := database.NewInferenceLogRepository(db)

	inferenceLogger := inference.NewLogger(inferenceLogRepo, logger)

	// Deduplication store
	store := dedup.NewStore(fingerprintRepo, dedup.Config{
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
		TermOverlapRatio:    cfg.Pipeline.TermOverlapRatio,
		TermOverlapMin:      cfg.Pipeline.TermOverlapMin,
		RetentionDays:       cfg.Pipeline.DuplicateWindowDays * 3,
	}, logger)

	// Event selection
	sourceClient := events.NewSourceClient(onThisDayFeedURL, cfg.OpenAI.StandardTimeout, logger)
	selector := events.NewScorer(sourceClient, store, events.DefaultCategoryCaps(), logger)

	// Generation and verification
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey)
	crossRef := verifier.NewWikipediaClient(wikipediaRestURL, cfg.OpenAI.StandardTimeout, logger)
	factChecker := verifier.New(openaiClient, crossRef, cfg.OpenAI, cfg.Pipeline, logger, inferenceLogger)
	writer := generator.NewWriter(openaiClient, cfg.OpenAI, logger, inferenceLogger)
	controller := generator.NewController(writer, factChecker, cfg.Pipeline, logger)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Media acquisition
	searchProviders := []media.Provider{
		media.NewWikimediaProvider(commonsAPIURL, cfg.Media.ProviderTimeout, logger),
		media.NewOpenverseProvider(openverseAPIURL, cfg.Media.ProviderTimeout, logger),
	}
	referenceProvider := media.NewReferenceProvider(cfg.Media.ProviderTimeout, logger)
	acquirer := media.NewAcquirer(searchProviders, referenceProvider, ledgerRepo, collector, cfg.Media, logger)

	// Review queue and publisher
	queue := review.NewQueue(queueRepo, logger)
	twitterClient := publisher.NewTwitterClient(cfg.Publisher, logger)
	if err := twitterClient.ValidateCredentials(ctx); err != nil {
		logger.Warn("twitter credentials validation failed, publishing will likely fail", "error", err)
	}

	runner := pipeline.NewRunner(selector, controller, acquirer, queue, store,
		twitterClient, collector, cfg.Pipeline, logger)

	// HTTP surface
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]any{
			"service":  "chronopost",
			"database": database.PoolStats(db),
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to write info response", "error", err)
		}
	})

	mux.Handle("/metrics", collector.Handler())

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	api.SetupRoutes(mux, queue, runner, authConfig, logger)

	// Scheduler
	sched := scheduler.New(runner, queue, store, acquirer, cfg.Scheduler, cfg.Pipeline, logger)
	if cfg.Scheduler.Enabled {
		logger.Info("starting scheduler")
		go sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled, runs must be triggered externally")
	}

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("chronopost started", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	if cfg.Scheduler.Enabled {
		sched.Stop()
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
