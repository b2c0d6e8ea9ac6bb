// Package metrics defines the Prometheus collectors used by the relay and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the relay.
type Metrics struct {
	BatchesTotal        *prometheus.CounterVec
	BatchSize           prometheus.Histogram
	BatchDuration       prometheus.Histogram
	RecordsTotal        *prometheus.CounterVec
	RecordFailuresTotal *prometheus.CounterVec
	StoreWriteDuration  prometheus.Histogram
	RedeliveriesTotal   prometheus.Counter
	BatchesAbandoned    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_batches_total",
				Help: "Total batches processed by result (success, partial, failed, empty).",
			},
			[]string{"result"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_batch_size",
				Help:    "Number of records per batch.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_batch_duration_seconds",
				Help:    "Wall time to process one batch in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_records_total",
				Help: "Total records by outcome (written, duplicate, failed).",
			},
			[]string{"outcome"},
		),
		RecordFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_record_failures_total",
				Help: "Total per-record failures by kind.",
			},
			[]string{"kind"},
		),
		StoreWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_store_write_duration_seconds",
				Help:    "Destination store write latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		RedeliveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_batch_redeliveries_total",
				Help: "Total times a failed batch was handed to the relay again.",
			},
		),
		BatchesAbandoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_batches_abandoned_total",
				Help: "Total failed batches committed after exhausting redeliveries.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.BatchSize,
		m.BatchDuration,
		m.RecordsTotal,
		m.RecordFailuresTotal,
		m.StoreWriteDuration,
		m.RedeliveriesTotal,
		m.BatchesAbandoned,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
