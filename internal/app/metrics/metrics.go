package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics of the ledger service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	TransactionsTotal *prometheus.CounterVec
	MutationFailures  *prometheus.CounterVec
	QueryCache        *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them in reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Ledger transactions written, by type and resulting status.",
			},
			[]string{"type", "status"},
		),
		MutationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_mutation_failures_total",
				Help: "Refused or failed ledger mutations, by reason.",
			},
			[]string{"reason"},
		),
		QueryCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_query_cache_total",
				Help: "Transaction query cache lookups, by result.",
			},
			[]string{"result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.TransactionsTotal, m.MutationFailures, m.QueryCache, m.RequestDuration)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Transaction(typ, status string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(typ, status).Inc()
}

func (m *Metrics) MutationFailure(reason string) {
	if m == nil {
		return
	}
	m.MutationFailures.WithLabelValues(reason).Inc()
}

// CacheLookup counts a query cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.QueryCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
