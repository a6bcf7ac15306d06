// Package metrics exports scan counters in the Prometheus text format.
//
// A scan is a short-lived process, so nothing is served over HTTP. The
// counters are written once per run to a textfile that a node exporter's
// textfile collector picks up.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"backer-go/internal/backer"
)

// Recorder implements backer.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	filesIngested    *prometheus.CounterVec
	filesSkipped     *prometheus.CounterVec
	locationsRemoved *prometheus.CounterVec
	hashMismatches   *prometheus.CounterVec
	trees            *prometheus.CounterVec
	treeDuration     *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with all scan metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		filesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backer_files_ingested_total",
				Help: "Files written to the catalog during ingest",
			},
			[]string{"marker"},
		),
		filesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backer_files_skipped_total",
				Help: "Files not written to the catalog during ingest",
			},
			[]string{"marker", "reason"},
		),
		locationsRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backer_locations_removed_total",
				Help: "Catalogued locations whose file was missing on disk",
			},
			[]string{"marker"},
		),
		hashMismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backer_hash_mismatches_total",
				Help: "Catalogued locations whose content changed on disk",
			},
			[]string{"marker"},
		),
		trees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backer_trees_total",
				Help: "Marker trees processed, by outcome",
			},
			[]string{"status"},
		),
		treeDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backer_tree_duration_seconds",
				Help: "Time spent in each scan stage of a tree",
			},
			[]string{"marker", "stage"},
		),
	}

	r.registry.MustRegister(
		r.filesIngested,
		r.filesSkipped,
		r.locationsRemoved,
		r.hashMismatches,
		r.trees,
		r.treeDuration,
	)
	return r
}

func (r *Recorder) FileIngested(marker string) {
	r.filesIngested.WithLabelValues(marker).Inc()
}

func (r *Recorder) FileSkipped(marker, reason string) {
	r.filesSkipped.WithLabelValues(marker, reason).Inc()
}

func (r *Recorder) LocationRemoved(marker string) {
	r.locationsRemoved.WithLabelValues(marker).Inc()
}

func (r *Recorder) HashMismatch(marker string) {
	r.hashMismatches.WithLabelValues(marker).Inc()
}

func (r *Recorder) TreeFinished(_ string, status string) {
	r.trees.WithLabelValues(status).Inc()
}

// StageDuration accumulates, so a stage run twice in one scan (ingest with
// --refresh) reports the total.
func (r *Recorder) StageDuration(marker, stage string, d time.Duration) {
	r.treeDuration.WithLabelValues(marker, stage).Add(d.Seconds())
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteToTextfile atomically writes all metrics to path.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Compile-time check
var _ backer.Metrics = (*Recorder)(nil)
