// Package metrics records job lifecycle metrics via Prometheus.
// Register the Extension with the ext registry to automatically track
// submission rates, terminal-state counts, queue depth, running jobs,
// and execution duration; expose the collected series with Handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension   = (*Extension)(nil)
	_ ext.JobQueued   = (*Extension)(nil)
	_ ext.JobStarted  = (*Extension)(nil)
	_ ext.JobLogged   = (*Extension)(nil)
	_ ext.JobFinished = (*Extension)(nil)
)

// Extension records system-wide lifecycle metrics.
type Extension struct {
	registry *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	logLines      prometheus.Counter

	jobsQueued  prometheus.Gauge
	jobsRunning prometheus.Gauge

	jobDuration *prometheus.HistogramVec
}

// New creates a metrics extension with its own Prometheus registry.
func New() *Extension {
	m := &Extension{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduct_jobs_submitted_total",
			Help: "Jobs accepted by submit, by command and class.",
		}, []string{"command", "class"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduct_jobs_finished_total",
			Help: "Jobs reaching a terminal state, by command and state.",
		}, []string{"command", "state"}),
		logLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conduct_log_lines_total",
			Help: "Log lines emitted by running handlers.",
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conduct_jobs_queued",
			Help: "Jobs currently waiting for an admission slot.",
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conduct_jobs_running",
			Help: "Jobs currently executing.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduct_job_duration_seconds",
			Help:    "Wall-clock execution time of finished jobs.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"command"}),
	}

	m.registry.MustRegister(
		m.jobsSubmitted,
		m.jobsFinished,
		m.logLines,
		m.jobsQueued,
		m.jobsRunning,
		m.jobDuration,
	)
	return m
}

// Name implements ext.Extension.
func (m *Extension) Name() string { return "prometheus-metrics" }

// Handler returns the HTTP handler serving the collected metrics.
func (m *Extension) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying Prometheus registry, e.g. for
// registering process collectors alongside the job metrics.
func (m *Extension) Registry() *prometheus.Registry { return m.registry }

// ── Lifecycle hooks ─────────────────────────────────

// OnJobQueued implements ext.JobQueued.
func (m *Extension) OnJobQueued(_ context.Context, j *job.Job) error {
	m.jobsSubmitted.WithLabelValues(j.Command, string(j.Class)).Inc()
	m.jobsQueued.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *Extension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.jobsQueued.Dec()
	m.jobsRunning.Inc()
	return nil
}

// OnJobLogged implements ext.JobLogged.
func (m *Extension) OnJobLogged(_ context.Context, _ *job.Job, _ int, _ string) error {
	m.logLines.Inc()
	return nil
}

// OnJobFinished implements ext.JobFinished.
// A job cancelled while still queued never passed through OnJobStarted,
// so the gauges are adjusted by where the job actually came from.
func (m *Extension) OnJobFinished(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.jobsFinished.WithLabelValues(j.Command, string(j.State)).Inc()
	if j.StartedAt != nil {
		m.jobsRunning.Dec()
		m.jobDuration.WithLabelValues(j.Command).Observe(elapsed.Seconds())
	} else {
		m.jobsQueued.Dec()
	}
	return nil
}
