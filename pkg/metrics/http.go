package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics collects request-level observability for the API server.
//
// A nil *HTTPMetrics is valid and records nothing, so it can be wired
// unconditionally.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.CounterVec
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() *HTTPMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &HTTPMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filemount_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "filemount_http_request_duration_milliseconds",
				Help: "Duration of HTTP requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms - cached responses
					10,    // 10ms
					50,    // 50ms - database round trips
					100,   // 100ms
					500,   // 500ms - blob store writes
					1000,  // 1s
					5000,  // 5s - large uploads
					30000, // 30s - remote downloads
				},
			},
			[]string{"method", "route"},
		),
		responseBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filemount_http_response_bytes_total",
				Help: "Total bytes written in HTTP responses by route",
			},
			[]string{"route"},
		),
	}
}

// ObserveRequest records a completed HTTP request. The route should be the
// router pattern (e.g. "/api/v1/assets/{id}/avatar"), not the raw path, to
// keep label cardinality bounded.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration, bytes int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}

	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.responseBytes.WithLabelValues(route).Add(float64(bytes))
	}
}
