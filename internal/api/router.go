package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/recallhq/recall/internal/database"
	mw "github.com/recallhq/recall/internal/middleware"
	inats "github.com/recallhq/recall/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Sync handlers
	TriggerSync        http.HandlerFunc
	LastSync           http.HandlerFunc
	SyncStatus         http.HandlerFunc
	ReprocessRecording http.HandlerFunc

	// Memory handlers
	ListMemories   http.HandlerFunc
	CreateMemory   http.HandlerFunc
	GetMemory      http.HandlerFunc
	SearchMemories http.HandlerFunc
	DeleteMemory   http.HandlerFunc

	// Monitoring handlers
	ListProcessing    http.HandlerFunc
	ProcessingSummary http.HandlerFunc
	ListAuditEntries  http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	SyncRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, rdb *redis.Client, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB, Redis, NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if err := rdb.Ping(r.Context()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Sync routes — the trigger is rate-limited because each request
		// starts a background run.
		r.Route("/sync", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.SyncRateLimiter != nil {
					r.Use(cfg.SyncRateLimiter)
				}
				r.Post("/", h.TriggerSync)
			})
			r.Get("/last", h.LastSync)
			r.Get("/status", h.SyncStatus)
		})

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/{recordingID}/reprocess", h.ReprocessRecording)
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", h.ListMemories)
			r.Post("/", h.CreateMemory)
			r.Post("/search", h.SearchMemories)
			r.Get("/{memoryID}", h.GetMemory)
			r.Delete("/{memoryID}", h.DeleteMemory)
		})

		r.Route("/processing", func(r chi.Router) {
			r.Get("/", h.ListProcessing)
			r.Get("/summary", h.ProcessingSummary)
		})

		r.Get("/audit", h.ListAuditEntries)
	})

	return r
}
