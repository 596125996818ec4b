package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudnet"

// Metrics holds the Prometheus collectors for processing runs and uploads.
type Metrics struct {
	Units        *prometheus.CounterVec   // labels: product, outcome={created,updated,frozen,skipped,missing,failed}
	UnitDuration *prometheus.HistogramVec // labels: product
	RawProcessed prometheus.Counter

	// Converter calls.
	ConvertDuration *prometheus.HistogramVec // labels: product

	// Submission API.
	Uploads *prometheus.CounterVec // labels: outcome={created,duplicate,rejected,failed}
}

func newMetrics() *Metrics {
	return &Metrics{
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Processing units by product and outcome.",
		}, []string{"product", "outcome"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time of one processing unit.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"product"}),
		RawProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_records_processed_total",
			Help:      "Raw records advanced to processed.",
		}),
		ConvertDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "convert_duration_seconds",
			Help:      "Converter request duration in seconds.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"product"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Raw file submissions by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.Units,
		m.UnitDuration,
		m.RawProcessed,
		m.ConvertDuration,
		m.Uploads,
	)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
