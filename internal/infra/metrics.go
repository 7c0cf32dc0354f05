package infra

import (
	"net/http"
	"time"

	"cambio_go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch and aggregation outcome labels.
const (
	OutcomeSuccess          = "success"
	OutcomeError            = "error"
	OutcomeAllSourcesFailed = "all_sources_failed"
	OutcomeMissingCurrency  = "missing_currency"
	OutcomeInFlight         = "in_flight"

	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheInvalid = "invalid"
)

// Metrics exposes the aggregation pipeline to Prometheus. Each instance
// carries its own registry so tests can create metrics freely.
type Metrics struct {
	registry *prometheus.Registry

	sourceFetchTotal    *prometheus.CounterVec
	sourceFetchDuration *prometheus.HistogramVec

	aggregationTotal   *prometheus.CounterVec
	lastSuccessUnix    prometheus.Gauge
	sourcesContributed prometheus.Gauge
	activeRate         *prometheus.GaugeVec

	cacheLoadTotal   *prometheus.CounterVec
	conversionsTotal prometheus.Counter
	wsClients        prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: registry,

		sourceFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cambio_source_fetch_total",
				Help: "Number of per-source fetch attempts by outcome",
			},
			[]string{"source", "outcome"},
		),

		sourceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cambio_source_fetch_duration_seconds",
				Help:    "Duration of per-source fetch attempts",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. 6.4s
			},
			[]string{"source"},
		),

		aggregationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cambio_aggregation_total",
				Help: "Number of aggregation cycles by outcome",
			},
			[]string{"outcome"},
		),

		lastSuccessUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cambio_last_aggregation_timestamp_seconds",
				Help: "Unix time of the last successful aggregation",
			},
		),

		sourcesContributed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cambio_sources_contributing",
				Help: "Sources that contributed to the active rate table",
			},
		),

		activeRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cambio_active_rate",
				Help: "Active rate per currency in units per 1 USD",
			},
			[]string{"currency"},
		),

		cacheLoadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cambio_cache_load_total",
				Help: "Snapshot cache load attempts by outcome",
			},
			[]string{"outcome"},
		),

		conversionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cambio_conversions_total",
				Help: "Number of conversions served",
			},
		),

		wsClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cambio_ws_clients",
				Help: "Currently connected WebSocket clients",
			},
		),
	}
}

// Handler returns the HTTP handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSourceFetch records one bounded fetch attempt against a source.
func (m *Metrics) RecordSourceFetch(source string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.sourceFetchTotal.WithLabelValues(source, outcome).Inc()
	m.sourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAggregationSuccess publishes the gauges for a fresh rate table.
func (m *Metrics) RecordAggregationSuccess(res *domain.AggregationResult) {
	m.aggregationTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.lastSuccessUnix.Set(float64(res.LastUpdate.Unix()))
	m.sourcesContributed.Set(float64(res.SourcesUsed))
	for currency, rate := range res.Rates {
		m.activeRate.WithLabelValues(string(currency)).Set(rate)
	}
}

// RecordAggregationFailure counts a failed cycle by reason.
func (m *Metrics) RecordAggregationFailure(outcome string) {
	m.aggregationTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLoad counts a snapshot load attempt by outcome.
func (m *Metrics) RecordCacheLoad(outcome string) {
	m.cacheLoadTotal.WithLabelValues(outcome).Inc()
}

// RecordConversion counts a served conversion.
func (m *Metrics) RecordConversion() {
	m.conversionsTotal.Inc()
}

// IncrementWSClients increments connected WebSocket clients by 1.
func (m *Metrics) IncrementWSClients() {
	m.wsClients.Inc()
}

// DecrementWSClients decrements connected WebSocket clients by 1.
func (m *Metrics) DecrementWSClients() {
	m.wsClients.Dec()
}
