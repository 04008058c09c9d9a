// Package metrics exposes pipeline counters and gauges for Prometheus
// scraping. The daemon mounts promhttp alongside the API and refreshes the
// depth gauges from the shared store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"harvest/internal/stagestore"
)

var (
	// JobsProcessed counts finished queue jobs. outcome: completed, failed.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_jobs_processed_total",
		Help: "The total number of finished queue jobs.",
	}, []string{"kind", "outcome"})

	// JobDuration observes queue job processing time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_job_duration_seconds",
		Help:    "Duration of queue job processing.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"kind"})

	// ImportOutcomes counts importer results. outcome: created, duplicate,
	// error.
	ImportOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_import_outcomes_total",
		Help: "The total number of ready packages handled by the importer.",
	}, []string{"outcome"})

	// RecordsDownloaded counts raw records fetched per source.
	RecordsDownloaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_downloaded_total",
		Help: "The total number of raw records downloaded.",
	}, []string{"source"})

	// StageDepth gauges how many files sit in each pipeline stage.
	StageDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvest_stage_depth",
		Help: "Files currently waiting in each pipeline stage directory.",
	}, []string{"stage"})
)

// ObserveJob records one finished job.
func ObserveJob(kind string, succeeded bool, took time.Duration) {
	outcome := "completed"
	if !succeeded {
		outcome = "failed"
	}
	JobsProcessed.WithLabelValues(kind, outcome).Inc()
	if took > 0 {
		JobDuration.WithLabelValues(kind).Observe(took.Seconds())
	}
}

// UpdateStageDepths publishes the store's current per-stage file counts.
func UpdateStageDepths(depths stagestore.Depths) {
	raw := 0
	for _, n := range depths.Raw {
		raw += n
	}
	errs := 0
	for _, n := range depths.Errors {
		errs += n
	}
	StageDepth.WithLabelValues("raw").Set(float64(raw))
	StageDepth.WithLabelValues("processed").Set(float64(depths.Processed))
	StageDepth.WithLabelValues("ready").Set(float64(depths.Ready))
	StageDepth.WithLabelValues("imported").Set(float64(depths.Imported))
	StageDepth.WithLabelValues("errors").Set(float64(errs))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
