package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the dispatcher.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	RequestDuration prometheus.Histogram
	InFlight        prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Total dispatched requests by final outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Total retry attempts scheduled by the dispatcher.",
		},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_request_duration_seconds",
			Help:    "Latency of individual upstream request attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_in_flight_requests",
			Help: "Requests currently admitted past the concurrency gate.",
		},
	)

	registry.MustRegister(requests, retries, requestDuration, inFlight)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RetriesTotal:    retries,
		RequestDuration: requestDuration,
		InFlight:        inFlight,
	}
}

// IncOutcome increments the requests total counter for a final outcome label.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// ObserveDuration records the latency of one attempt.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddInFlight moves the in-flight gauge by delta.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}
