// Package metrics records sync run metrics for export as a prometheus text
// file, which suits a batch job better than a scrape endpoint.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Leaderboard and upload outcomes.
const (
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
	StatusUploaded  = "uploaded"
)

// Recorder holds the run metrics on a private registry. A nil *Recorder
// discards everything.
type Recorder struct {
	namespace string
	registry  *prometheus.Registry

	leaderboards *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	rowsWritten  prometheus.Counter
	duplicates   prometheus.Counter
	invalid      prometheus.Counter
	runDuration  prometheus.Gauge
	lastRun      prometheus.Gauge
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

func New(opts ...Option) *Recorder {
	r := &Recorder{namespace: "evalsync", registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.leaderboards = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "leaderboards_total",
		Help:      "Leaderboards processed by outcome",
	}, []string{"status"})
	r.uploads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "uploads_total",
		Help:      "Table uploads by outcome",
	}, []string{"status"})
	r.rowsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "rows_written_total",
		Help:      "Rows in tables written this run",
	})
	r.duplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "duplicate_rows_total",
		Help:      "Rows skipped because their identity key was already present",
	})
	r.invalid = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "invalid_records_total",
		Help:      "Record files skipped as malformed or invalid",
	})
	r.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.lastRun = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Leaderboard(status string) {
	if r != nil {
		r.leaderboards.WithLabelValues(status).Inc()
	}
}

func (r *Recorder) Upload(status string) {
	if r != nil {
		r.uploads.WithLabelValues(status).Inc()
	}
}

func (r *Recorder) RowsWritten(n int) {
	if r != nil {
		r.rowsWritten.Add(float64(n))
	}
}

func (r *Recorder) Duplicates(n int) {
	if r != nil {
		r.duplicates.Add(float64(n))
	}
}

func (r *Recorder) InvalidRecords(n int) {
	if r != nil {
		r.invalid.Add(float64(n))
	}
}

// RunFinished records the duration of a run that started at start.
func (r *Recorder) RunFinished(start time.Time) {
	if r != nil {
		r.runDuration.Set(time.Since(start).Seconds())
		r.lastRun.SetToCurrentTime()
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
