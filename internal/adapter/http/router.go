package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/asgard/telemetry-core/internal/adapter/realtime"
	"github.com/asgard/telemetry-core/internal/observability"
	"github.com/asgard/telemetry-core/internal/telemetry"
)

// NewRouter wires the full HTTP surface: registration, ingestion,
// device registry, alerts, health, metrics, and the WebSocket upgrade
// endpoint. corsAllowedOrigins is environment-driven (see
// internal/config) rather than hardcoded, so production deployments
// can run with CORS locked down while local development defaults to
// permissive.
func NewRouter(store *telemetry.Store, dispatcher *telemetry.Dispatcher, broadcaster *realtime.Broadcaster, corsAllowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(observability.HTTPMiddleware)

	h := NewHandlers(store, dispatcher)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", observability.Handler())

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.Devices)
		r.Get("/{id}", h.Device)
		r.Delete("/{id}", h.DeleteDevice)
		r.Get("/{id}/alerts", h.Alerts)
	})

	r.Post("/ingest", h.Ingest)
	r.Post("/register", h.Register)
	r.Get("/summary", h.Summary)
	r.Get("/alerts", h.ScanAlerts)

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		realtime.HandleWebSocket(w, r, broadcaster)
	})

	return r
}
