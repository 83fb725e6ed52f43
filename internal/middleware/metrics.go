package middleware

import (
	"net/http"
	"strconv"
	"time"

	"journal-api/internal/config"
	"journal-api/internal/cors"
	"journal-api/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestDuration tracks request duration
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "journal_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks the total number of requests
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_http_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "path", "status"},
	)

	// CORSDecisions tracks CORS verdicts
	corsDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_cors_decisions_total",
			Help: "CORS decisions by outcome, request kind and denial reason",
		},
		[]string{"outcome", "kind", "reason"},
	)
)

func init() {
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(corsDecisions)
}

// MetricsMiddleware provides metrics collection and endpoints
type MetricsMiddleware struct {
	config *config.MetricsConfig
	log    logger.Logger
}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware(config *config.MetricsConfig, log logger.Logger) *MetricsMiddleware {
	return &MetricsMiddleware{
		config: config,
		log:    log,
	}
}

// RouteRegistrar is the part of a router the metrics endpoint needs
type RouteRegistrar interface {
	Handle(path string, h http.Handler, methods ...string)
}

// RegisterMetricsEndpoint adds the prometheus handler to router. It is
// served like any other route, behind CORS, tracing and request metrics.
func (m *MetricsMiddleware) RegisterMetricsEndpoint(router RouteRegistrar) {
	if !m.config.Enabled {
		return
	}

	router.Handle(m.config.Endpoint, promhttp.Handler(), http.MethodGet)

	m.log.Info("Registered metrics endpoint",
		logger.String("endpoint", m.config.Endpoint),
	)
}

// Metrics middleware collects metrics for each request
func (m *MetricsMiddleware) Metrics(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(recorder.statusCode)

		requestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

// RecordCORSDecision counts a CORS decision
func (m *MetricsMiddleware) RecordCORSDecision(d cors.Decision) {
	if m.config.Enabled {
		corsDecisions.WithLabelValues(d.Outcome.String(), d.Kind(), d.Reason).Inc()
	}
}

// responseRecorder captures the status code written by the next handler
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the status code
func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.statusCode = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

// Write marks the header as written with the implicit 200
func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
