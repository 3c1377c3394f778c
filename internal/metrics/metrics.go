package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of response cache hits.",
		},
		[]string{"segment"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of response cache misses.",
		},
		[]string{"segment"},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries evicted because a segment was full.",
		},
		[]string{"segment"},
	)

	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Number of whole-segment invalidations.",
		},
		[]string{"segment"},
	)

	// Upstream calls made by the proxy, by endpoint (text|image_submit|image_poll).
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Requests sent to the generation upstream.",
		},
		[]string{"endpoint", "status"},
	)

	ImageTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tasks_total",
			Help: "Image generation tasks by final outcome.",
		},
		[]string{"outcome"},
	)

	ImageFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "image_fallbacks_total",
			Help: "Image submissions retried with the fallback model.",
		},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 120},
		},
		[]string{"route", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheHitsTotal,
			CacheMissesTotal,
			CacheEvictionsTotal,
			CacheInvalidationsTotal,
			UpstreamRequestsTotal,
			ImageTasksTotal,
			ImageFallbacksTotal,
			HTTPLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request. Routes are labelled by
// their chi pattern so ids in the path do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
