/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters/histograms
  5. requestLog: Structured request logging via slog
  6. CORS:       Cross-origin requests

ROUTE GROUPS:
  /api/events/*       Inbound pipeline events
  /api/deals/*        Deal queries and export
  /api/leaderboard    Ranked windowed views
  /api/summary        Company-wide totals
  /api/reps/*         Per-representative reports
  /api/admin/*        Administrative operations
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. Identity is trusted from the chat
  collaborator; administrative actions are gated by the engine's
  authorizer.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(requestLog(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Inbound pipeline events
		r.Route("/events", func(r chi.Router) {
			r.Post("/appointment-set", h.AppointmentSet)
			r.Post("/deal-close", h.DealClose)
			r.Post("/deal-delete", h.DealDelete)
		})

		// Deal queries
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", h.ListDeals)
			r.Get("/pending", h.ListPending)
			r.Get("/export.csv", h.ExportCSV)
			r.Get("/{id}", h.GetDeal)
		})

		// Reporting
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/summary", h.Summary)
		r.Get("/reps/{id}/stats", h.RepStats)
		r.Get("/audit", h.Audit)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.Reset)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLog logs each request with method, path, status and latency.
func requestLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
