// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the telemetry core.
package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the telemetry core exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebSocketConnections prometheus.Gauge

	PacketsIngested    *prometheus.CounterVec
	FusionCycleSeconds prometheus.Histogram
	StoreSize          prometheus.Gauge
	DevicesPruned      prometheus.Counter
	AlertsEmitted      *prometheus.CounterVec
	AlertsSuppressed   *prometheus.CounterVec
	SnapshotWrites     *prometheus.CounterVec
	SnapshotLatency    prometheus.Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it on
// first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = initializeMetrics()
	})
	return globalMetrics
}

func initializeMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telemetry_core",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	m.WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "telemetry_core",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
	)

	m.PacketsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "ingest",
			Name:      "packets_total",
			Help:      "Total sensor packets ingested",
		},
		[]string{"device_id"},
	)

	m.FusionCycleSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "telemetry_core",
			Subsystem: "fusion",
			Name:      "cycle_seconds",
			Help:      "Duration of one fuse-position-scan-alert cycle",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	m.StoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "telemetry_core",
			Subsystem: "store",
			Name:      "devices",
			Help:      "Number of devices currently tracked",
		},
	)

	m.DevicesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "store",
			Name:      "devices_pruned_total",
			Help:      "Total devices evicted by TTL pruning",
		},
	)

	m.AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total alerts emitted, by kind",
		},
		[]string{"kind"},
	)

	m.AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total alerts suppressed by the dedup window, by kind",
		},
		[]string{"kind"},
	)

	m.SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telemetry_core",
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Total snapshot persistence attempts, by result",
		},
		[]string{"result"},
	)

	m.SnapshotLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "telemetry_core",
			Subsystem: "snapshot",
			Name:      "write_seconds",
			Help:      "Snapshot write latency in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware wraps an HTTP handler with request metrics collection.
func HTTPMiddleware(next http.Handler) http.Handler {
	m := GetMetrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, statusToStr(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hijacker.Hijack()
}

func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusToStr(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// RecordSnapshotWrite records a snapshot persistence attempt.
func RecordSnapshotWrite(ok bool, d time.Duration) {
	m := GetMetrics()
	result := "success"
	if !ok {
		result = "failure"
	}
	m.SnapshotWrites.WithLabelValues(result).Inc()
	m.SnapshotLatency.Observe(d.Seconds())
}

// RecordAlert records an emitted alert by kind.
func RecordAlert(kind string) {
	GetMetrics().AlertsEmitted.WithLabelValues(kind).Inc()
}

// RecordAlertSuppressed records a throttled alert by kind.
func RecordAlertSuppressed(kind string) {
	GetMetrics().AlertsSuppressed.WithLabelValues(kind).Inc()
}

// RecordPruned adds n to the devices-pruned counter.
func RecordPruned(n int) {
	if n <= 0 {
		return
	}
	GetMetrics().DevicesPruned.Add(float64(n))
}

// UpdateWebSocketConnections sets the active WebSocket connection gauge.
func UpdateWebSocketConnections(count int) {
	GetMetrics().WebSocketConnections.Set(float64(count))
}

// UpdateStoreSize sets the tracked-device gauge.
func UpdateStoreSize(count int) {
	GetMetrics().StoreSize.Set(float64(count))
}
