package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Scrape pipeline metrics.
var (
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathud",
			Name:      "dispatch_requests_total",
			Help:      "Dispatcher requests by action kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: scrape, check, grab; outcome: ok, error
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chathud",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatcher round trip duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	FragmentsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathud",
			Name:      "fragments_extracted_total",
			Help:      "Fragments extracted per site",
		},
		[]string{"site"},
	)

	ExtractionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathud",
			Name:      "extraction_errors_total",
			Help:      "Per-element extraction errors per site",
		},
		[]string{"site"},
	)

	FragmentsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chathud",
			Name:      "fragments_stored_total",
			Help:      "Fragments appended to the local store",
		},
	)

	SchemaState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chathud",
			Name:      "schema_working",
			Help:      "1 when the site's selector matched at the last check, else 0",
		},
		[]string{"site"},
	)
)

var registerOnce sync.Once

// RegisterScrapeMetrics registers the scrape pipeline metrics with the
// default registry. Safe to call more than once.
func RegisterScrapeMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DispatchTotal)
		prometheus.MustRegister(DispatchDuration)
		prometheus.MustRegister(FragmentsExtracted)
		prometheus.MustRegister(ExtractionErrors)
		prometheus.MustRegister(FragmentsStored)
		prometheus.MustRegister(SchemaState)
	})
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
