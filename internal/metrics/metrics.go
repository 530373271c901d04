package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foxzi/newsflash/internal/models"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for newsflash
type Metrics struct {
	// Delivery and subscription counters
	DeliveriesTotal    *prometheus.CounterVec
	SubscriptionsTotal *prometheus.CounterVec

	// Subscriber gauges
	ActiveSubscribers prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsflash_deliveries_total",
				Help: "Total number of completed delivery attempts",
			},
			[]string{"category", "status"},
		),
		SubscriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsflash_subscriptions_total",
				Help: "Total number of subscribe requests by outcome",
			},
			[]string{"outcome"},
		),

		ActiveSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsflash_active_subscribers",
				Help: "Number of active newsletter subscribers",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsflash_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsflash_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsflash_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsflash_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsflash_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsflash_storage_used_bytes",
				Help: "SQLite database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.DeliveriesTotal,
		m.SubscriptionsTotal,
		m.ActiveSubscribers,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DeliveryCompleted counts a finished delivery attempt
func (m *Metrics) DeliveryCompleted(category models.Category, status models.DeliveryStatus) {
	m.DeliveriesTotal.WithLabelValues(string(category), string(status)).Inc()
}

// SubscribeCompleted counts a subscribe request by outcome
func (m *Metrics) SubscribeCompleted(outcome string) {
	m.SubscriptionsTotal.WithLabelValues(outcome).Inc()
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
