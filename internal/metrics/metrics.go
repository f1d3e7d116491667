// Package metrics holds the Prometheus collectors for the pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedvault"

// Metrics groups every collector the process exports.
type Metrics struct {
	registry *prometheus.Registry

	IngestTotal      *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	QueueDropped     *prometheus.CounterVec
	Records          prometheus.Gauge
	StoreBytes       prometheus.Gauge
	QuotaPercentUsed prometheus.Gauge
	QuotaState       prometheus.Gauge
	CleanupRemoved   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New(version string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.IngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_total",
		Help:      "Ingest attempts by result",
	}, []string{"result"})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Records waiting in the admission queue",
	})

	m.QueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_dropped_total",
		Help:      "Queued records discarded without processing",
	}, []string{"reason"})

	m.Records = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "records",
		Help:      "Records currently stored",
	})

	m.StoreBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_bytes",
		Help:      "Serialized size of the store at the last quota check",
	})

	m.QuotaPercentUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_percent_used",
		Help:      "Store size as a fraction of estimated capacity",
	})

	m.QuotaState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_state",
		Help:      "Quota tier: 0 ok, 1 warning, 2 critical",
	})

	m.CleanupRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_removed_total",
		Help:      "Records removed by cleanup strategy",
	}, []string{"strategy"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests",
	}, []string{"method", "route", "status"})

	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP API request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	m.registry.MustRegister(
		m.IngestTotal, m.QueueDepth, m.QueueDropped, m.Records, m.StoreBytes,
		m.QuotaPercentUsed, m.QuotaState, m.CleanupRemoved,
		m.HTTPRequests, m.HTTPDuration, info,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Ingest counts one ingest attempt.
func (m *Metrics) Ingest(result string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Dropped counts queued records discarded for reason (overflow or stale).
func (m *Metrics) Dropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.QueueDropped.WithLabelValues(reason).Add(float64(n))
}

// Cleanup counts records removed by a strategy.
func (m *Metrics) Cleanup(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CleanupRemoved.WithLabelValues(strategy).Add(float64(n))
}

// Quota records the latest quota check.
func (m *Metrics) Quota(totalBytes int64, records int, percentUsed float64, state int) {
	if m == nil {
		return
	}
	m.StoreBytes.Set(float64(totalBytes))
	m.Records.Set(float64(records))
	m.QuotaPercentUsed.Set(percentUsed)
	m.QuotaState.Set(float64(state))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
