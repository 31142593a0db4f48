// Package metrics holds the Prometheus collectors for the poll loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laurarmit/DogBarkProject/internal/domain"
)

// Metrics records poll-cycle outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	CyclesTotal    prometheus.Counter
	FailuresTotal  *prometheus.CounterVec
	PublishesTotal prometheus.Counter
	LastDecibels   prometheus.Gauge
	CycleDuration  prometheus.Histogram
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dogbark_cycles_total",
			Help: "Total number of poll cycles run",
		}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogbark_cycle_failures_total",
			Help: "Total number of failed poll cycles by failure kind",
		}, []string{"kind"}),
		PublishesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dogbark_publishes_total",
			Help: "Total number of readings accepted by the broker",
		}),
		LastDecibels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogbark_last_decibels",
			Help: "Most recently published sound level in dB",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dogbark_cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.FailuresTotal,
		m.PublishesTotal,
		m.LastDecibels,
		m.CycleDuration,
	)
	for _, k := range []domain.FailureKind{
		domain.KindDeviceNotFound,
		domain.KindDeviceIO,
		domain.KindSerialize,
		domain.KindPublish,
	} {
		m.FailuresTotal.WithLabelValues(string(k))
	}
	return m
}

// ObserveCycle records one finished cycle. reading is nil when the cycle
// failed.
func (m *Metrics) ObserveCycle(reading *domain.Reading, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(elapsed.Seconds())

	if err != nil {
		kind, ok := domain.KindOf(err)
		if !ok {
			kind = "unknown"
		}
		m.FailuresTotal.WithLabelValues(string(kind)).Inc()
		return
	}
	if reading != nil {
		m.PublishesTotal.Inc()
		m.LastDecibels.Set(reading.Decibels)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
