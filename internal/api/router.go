package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-scheduling-core/internal/metrics"
)

type RouterConfig struct {
	Service        AppointmentService
	PgPool         *pgxpool.Pool // nil with the memory store
	Redis          *redis.Client // nil with the local locker
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	Metrics        bool
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)
	if cfg.Metrics {
		r.Use(MetricsMiddleware)
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))

		r.Get("/availability", availabilityHandler(cfg.Service))
		r.Post("/by-date", bookByDateHandler(cfg.Service))
		r.Post("/", bookInstantHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Put("/{id}/reschedule", rescheduleHandler(cfg.Service))
		r.Delete("/{id}", cancelHandler(cfg.Service))
	})

	return r
}
