package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for report
// fetching, conversion, and export.
type Metrics struct {
	// Atlas endpoint metrics.
	FetchRequests *prometheus.CounterVec   // labels: report, outcome={success,error,invalid}
	FetchDuration *prometheus.HistogramVec // labels: report

	// Conversion metrics.
	RecordsConverted *prometheus.CounterVec // labels: report
	ConvertErrors    *prometheus.CounterVec // labels: report

	// Export metrics.
	RecordsPublished prometheus.Counter
	ExportRuns       *prometheus.CounterVec // labels: outcome={success,partial,error}
	ExporterRunning  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.RecordsConverted,
		m.ConvertErrors,
		m.RecordsPublished,
		m.ExportRuns,
		m.ExporterRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastagem",
			Name:      "fetch_requests_total",
			Help:      "Atlas download requests by report and outcome.",
		}, []string{"report", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pastagem",
			Name:      "fetch_duration_seconds",
			Help:      "Atlas download request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"report"}),
		RecordsConverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastagem",
			Name:      "records_converted_total",
			Help:      "CSV rows converted to typed records.",
		}, []string{"report"}),
		ConvertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastagem",
			Name:      "convert_errors_total",
			Help:      "CSV payloads rejected by the parser.",
		}, []string{"report"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastagem",
			Name:      "records_published_total",
			Help:      "Report records written to the sink topic.",
		}),
		ExportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastagem",
			Name:      "export_runs_total",
			Help:      "Scheduled export runs by outcome.",
		}, []string{"outcome"}),
		ExporterRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pastagem",
			Name:      "exporter_running",
			Help:      "1 when the export scheduler is active, 0 otherwise.",
		}),
	}
}
