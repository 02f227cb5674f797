package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginFailures   prometheus.Counter
	sessionsCreated prometheus.Counter
	sessionsEnded   prometheus.Counter
	auditDropped    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	loginFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "login_failures_total",
		Help: "Total failed login attempts",
	})

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Total sessions issued",
	})

	sessionsEnded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_ended_total",
		Help: "Total sessions removed by logout, end-all, or idle eviction",
	})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_dropped_total",
		Help: "Audit log writes that failed and were not retried",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginFailures, sessionsCreated, sessionsEnded, auditDropped, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginFailures:   loginFailures,
		sessionsCreated: sessionsCreated,
		sessionsEnded:   sessionsEnded,
		auditDropped:    auditDropped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordLoginFailure counts a failed login attempt.
func (m *MetricsService) RecordLoginFailure() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}

// RecordSessionCreated counts an issued session.
func (m *MetricsService) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// RecordSessionsEnded counts removed sessions.
func (m *MetricsService) RecordSessionsEnded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEnded.Add(float64(n))
}

// RecordAuditDropped counts an audit entry lost to a sink failure.
func (m *MetricsService) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}
