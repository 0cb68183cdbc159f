package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"route", "method"},
	)
	// MatchStrategyTotal counts which matching strategy produced the result
	// set: semantic, keyword or suggest.
	MatchStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_strategy_total",
			Help: "Total number of match results by winning strategy",
		},
		[]string{"strategy"},
	)
	// RecommendStrategyTotal counts which recommendation strategy produced
	// the narrative: generative, template, cache or default.
	RecommendStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_strategy_total",
			Help: "Total number of recommendations by winning strategy",
		},
		[]string{"strategy"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			MatchStrategyTotal,
			RecommendStrategyTotal,
		)
	})
}

// IncMatchStrategy records the winning matching strategy for one request.
func IncMatchStrategy(strategy string) {
	MatchStrategyTotal.WithLabelValues(strategy).Inc()
}

// IncRecommendStrategy records the winning recommendation strategy.
func IncRecommendStrategy(strategy string) {
	RecommendStrategyTotal.WithLabelValues(strategy).Inc()
}

// HTTPMetricsMiddleware instruments requests with the counters above. Route
// labels use the chi route pattern so they stay low-cardinality.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
