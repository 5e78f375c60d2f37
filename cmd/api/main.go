package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/audit"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/database"
	"github.com/recallhq/recall/internal/dedup"
	"github.com/recallhq/recall/internal/insight"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/middleware"
	inats "github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/perf"
	"github.com/recallhq/recall/internal/pipeline"
	"github.com/recallhq/recall/internal/quality"
	"github.com/recallhq/recall/internal/recording"
	iredis "github.com/recallhq/recall/internal/redis"
	"github.com/recallhq/recall/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS — optional; the pipeline degrades to dropping handoffs without it.
	var natsClient *inats.Client
	var publisher *inats.Publisher
	natsClient, err = inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Warn("NATS unavailable, handoffs and audit events disabled", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Extraction
	extractor := insight.NewOpenAIExtractor(cfg.OpenAI)

	// Memories
	memoryRepo := memory.NewPostgresRepository(pool)
	memorySvc := memory.NewService(memoryRepo, extractor, cfg.Pipeline.DedupSimilarity)
	memoryHandler := memory.NewHandler(memorySvc)

	// Performance tracking
	recordRepo := perf.NewPostgresRepository(pool)
	tracker := perf.NewTracker(recordRepo)
	perfHandler := perf.NewHandler(tracker)

	// Audit trail
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	// Pipeline
	source := recording.NewClient(cfg.Source)
	guard := dedup.NewGuard(redisClient, cfg.Pipeline.MarkerTTL)
	coordinator := pipeline.NewCoordinator(
		source,
		quality.NewFilter(cfg.Pipeline.QualityThreshold),
		extractor,
		memorySvc,
		guard,
		tracker,
		publisherOrNil(publisher),
		redisClient,
		cfg.Pipeline,
	)
	pipelineHandler := pipeline.NewHandler(coordinator)

	// Background workers
	scheduler := pipeline.NewScheduler(coordinator, cfg.Pipeline.SyncInterval, cfg.Pipeline.SyncWindow)
	go scheduler.Start(ctx)

	if natsClient != nil {
		auditConsumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Sync trigger rate limiter
	syncLimiter := middleware.NewRateLimiter(redisClient, cfg.Pipeline.SyncRateLimitPerMin, 60)

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		SyncRateLimiter:    syncLimiter.Middleware,
	}, api.HandlerSet{
		TriggerSync:        pipelineHandler.Trigger,
		LastSync:           pipelineHandler.LastSummary,
		SyncStatus:         pipelineHandler.Status,
		ReprocessRecording: pipelineHandler.Reprocess,

		ListMemories:   memoryHandler.List,
		CreateMemory:   memoryHandler.Create,
		GetMemory:      memoryHandler.Get,
		SearchMemories: memoryHandler.Search,
		DeleteMemory:   memoryHandler.Delete,

		ListProcessing:    perfHandler.List,
		ProcessingSummary: perfHandler.Summary,
		ListAuditEntries:  auditHandler.List,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// publisherOrNil keeps the coordinator's publisher parameter a typed nil-free
// value: a nil *inats.Publisher inside a non-nil interface would dodge the
// coordinator's nil check.
func publisherOrNil(p *inats.Publisher) pipeline.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
