package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the stock service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MovementsRecorded   *prometheus.CounterVec
	ReservationOutcomes *prometheus.CounterVec
	ReservationsClosed  *prometheus.CounterVec
	ConflictRetries     *prometheus.CounterVec
	SweepRuns           *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	AlertsPublished     *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.MovementsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_movements_total",
		Help:      "Ledger movements written, by movement type.",
	}, []string{"type"})

	m.ReservationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservations_total",
		Help:      "Reservation attempts, by outcome code.",
	}, []string{"outcome"})

	m.ReservationsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservations_closed_total",
		Help:      "Reservations that left the active state, by cause.",
	}, []string{"cause"})

	m.ConflictRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_retries_total",
		Help:      "Optimistic write conflicts retried, by operation.",
	}, []string{"operation"})

	m.SweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expiration_sweeps_total",
		Help:      "Expiration sweeper ticks, by result.",
	}, []string{"result"})

	m.SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "expiration_sweep_duration_seconds",
		Help:      "Duration of expiration sweeps.",
		Buckets:   prometheus.DefBuckets,
	})

	m.AlertsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_alerts_total",
		Help:      "Stock alerts dispatched, by level and result.",
	}, []string{"level", "result"})

	m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Inventory cache lookups, by scope and result.",
	}, []string{"scope", "result"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MovementsRecorded,
		m.ReservationOutcomes,
		m.ReservationsClosed,
		m.ConflictRetries,
		m.SweepRuns,
		m.SweepDuration,
		m.AlertsPublished,
		m.CacheLookups,
		m.CircuitBreakerState,
	)
	return m
}

// NewNop returns metrics registered on a throwaway registry, for tests and tools.
func NewNop() *Metrics {
	return New("test")
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
