package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful analyses.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analyses (job lookup or dependency issues).
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lakewatch_rca",
			Name:      "analyses_total",
			Help:      "Total number of RCA analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lakewatch_rca",
			Name:      "analysis_seconds",
			Help:      "RCA analysis latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 20, 30},
		},
	)

	statementDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lakewatch_rca",
			Name:      "statement_seconds",
			Help:      "Warehouse statement execution latency in seconds, including polling.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
	)

	scrapedIncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lakewatch_rca",
			Name:      "scraped_incidents_total",
			Help:      "Incidents parsed from status pages, partitioned by source.",
		},
		[]string{"source"},
	)

	scrapeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lakewatch_rca",
			Name:      "scrape_failures_total",
			Help:      "Status-page scrape failures, partitioned by source.",
		},
		[]string{"source"},
	)
)

// Register attaches lakewatch-rca collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		statementDurationSeconds,
		scrapedIncidentsTotal,
		scrapeFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveStatement records a warehouse statement duration.
func ObserveStatement(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	statementDurationSeconds.Observe(duration.Seconds())
}

// ObserveScrape records per-source scrape results.
func ObserveScrape(source string, incidents int, failed bool) {
	if failed {
		scrapeFailuresTotal.WithLabelValues(source).Inc()
		return
	}
	scrapedIncidentsTotal.WithLabelValues(source).Add(float64(incidents))
}
