package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for catalog aggregation.
type Metrics struct {
	RunsStarted         *prometheus.CounterVec
	FetchesTotal        *prometheus.CounterVec
	StaleCompletions    *prometheus.CounterVec
	DuplicateNames      *prometheus.CounterVec
	FetchLatencySeconds *prometheus.HistogramVec
	CollectionSize      *prometheus.GaugeVec
	ListingFailures     *prometheus.CounterVec
}

// New registers the collectors with the given registerer. Pass nil to use the
// default registry; tests pass a fresh prometheus.NewRegistry() so repeated
// construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_catalog_runs_started_total",
			Help: "Total number of aggregation runs started",
		}, []string{"catalog"}),
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_catalog_fetches_total",
			Help: "Detail fetch completions by outcome",
		}, []string{"catalog", "outcome"}),
		StaleCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_catalog_stale_completions_total",
			Help: "Fetch completions discarded because their run was superseded",
		}, []string{"catalog"}),
		DuplicateNames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_catalog_duplicate_names_total",
			Help: "Records replaced by a later record with the same name",
		}, []string{"catalog"}),
		FetchLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_catalog_fetch_latency_seconds",
			Help:    "Latency of detail fetches",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"catalog"}),
		CollectionSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_catalog_collection_size",
			Help: "Number of records in the active run's collection",
		}, []string{"catalog"}),
		ListingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_catalog_listing_failures_total",
			Help: "Listing fetches that failed, by error kind",
		}, []string{"catalog", "kind"}),
	}
}

func (m *Metrics) IncrementRunsStarted(catalog string) {
	m.RunsStarted.WithLabelValues(catalog).Inc()
}

// IncrementFetches records one completion; outcome is "success" or a failure category.
func (m *Metrics) IncrementFetches(catalog, outcome string) {
	m.FetchesTotal.WithLabelValues(catalog, outcome).Inc()
}

func (m *Metrics) IncrementStaleCompletions(catalog string) {
	m.StaleCompletions.WithLabelValues(catalog).Inc()
}

func (m *Metrics) IncrementDuplicateNames(catalog string) {
	m.DuplicateNames.WithLabelValues(catalog).Inc()
}

func (m *Metrics) ObserveFetchLatency(catalog string, d time.Duration) {
	m.FetchLatencySeconds.WithLabelValues(catalog).Observe(d.Seconds())
}

func (m *Metrics) SetCollectionSize(catalog string, n int) {
	m.CollectionSize.WithLabelValues(catalog).Set(float64(n))
}

func (m *Metrics) IncrementListingFailures(catalog, kind string) {
	m.ListingFailures.WithLabelValues(catalog, kind).Inc()
}
