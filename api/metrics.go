/*
metrics.go - Prometheus instrumentation

PURPOSE:
  HTTP-level metrics for every request plus domain counters for the three
  deal mutations. Exposed on /metrics via promhttp.

LABELS:
  HTTP metrics are labeled with the chi route pattern, not the raw path,
  so /api/deals/1000 and /api/deals/1001 share a series.
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	dealsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deals_created_total",
			Help: "Total number of appointments set",
		},
	)

	dealsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deals_closed_total",
			Help: "Total number of deals closed",
		},
	)

	dealsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deals_deleted_total",
			Help: "Total number of deals deleted",
		},
	)

	eventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_errors_total",
			Help: "Total number of rejected inbound events",
		},
		[]string{"kind"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics records request count, duration and in-flight connections.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func recordDealCreated() { dealsCreated.Inc() }
func recordDealClosed()  { dealsClosed.Inc() }
func recordDealDeleted() { dealsDeleted.Inc() }

func recordEventError(kind string) { eventErrors.WithLabelValues(kind).Inc() }
