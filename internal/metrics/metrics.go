// Package metrics holds the Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baguette_submissions_total",
			Help: "Total number of flag submissions by result",
		},
		[]string{"result"}, // "ok" or an error kind such as "invalid_flag"
	)

	ContestsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "baguette_contests_started_total",
			Help: "Total number of contests started",
		},
	)

	RewardsPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "baguette_rewards_paid_total",
			Help: "Total reward tokens paid out, in whole tokens",
		},
	)

	PrizePoolRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "baguette_prize_pool_remaining",
			Help: "Remaining prize pool, in whole tokens",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baguette_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "baguette_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "baguette_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	ReplaysRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "baguette_replays_rejected_total",
			Help: "Total number of transactions rejected as replays",
		},
	)
)

// Middleware records request count and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
