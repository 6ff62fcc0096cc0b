// Package metrics records batch outcomes as Prometheus series. The command
// line tool is a batch job, so series are written to a node-exporter textfile
// instead of being served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fermentlab/internal/gc"
)

const namespace = "gcreport"

// Recorder implements gc.Observer on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	reports    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duplicates prometheus.Counter
	duration   prometheus.Histogram
	lastRun    prometheus.Gauge
}

// New returns a recorder with all series registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports parsed, by outcome.",
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_errors_total",
			Help:      "Rejected reports, by error kind.",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_samples_total",
			Help:      "Sample IDs reported by more than one file.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent reading and parsing one report.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}),
	}
	r.registry.MustRegister(r.reports, r.errors, r.duplicates, r.duration, r.lastRun)
	for _, s := range []gc.Status{gc.StatusRecord, gc.StatusNoRecord, gc.StatusRejected} {
		r.reports.WithLabelValues(string(s))
	}
	return r
}

// Registry exposes the gatherer for tests and custom exposition.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ReportParsed(status gc.Status, elapsed time.Duration) {
	r.reports.WithLabelValues(string(status)).Inc()
	r.duration.Observe(elapsed.Seconds())
}

func (r *Recorder) ReportFailed(kind gc.ErrorKind) {
	r.errors.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) DuplicateSample(int) { r.duplicates.Inc() }

// MarkFinished stamps the completion time of a batch.
func (r *Recorder) MarkFinished(t time.Time) { r.lastRun.Set(float64(t.Unix())) }

// WriteTextfile writes all series in text exposition format, replacing path
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

var _ gc.Observer = (*Recorder)(nil)
