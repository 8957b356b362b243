package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension   = (*Extension)(nil)
	_ ext.JobQueued   = (*Extension)(nil)
	_ ext.JobStarted  = (*Extension)(nil)
	_ ext.JobFinished = (*Extension)(nil)
)

// Recorder is the interface audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Conduct lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension emitting audit events through the Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-trail" }

// OnJobQueued implements ext.JobQueued.
func (e *Extension) OnJobQueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobQueued, SeverityInfo, OutcomeSuccess, j,
		"class", string(j.Class),
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j)
}

// OnJobFinished implements ext.JobFinished. The terminal state picks the
// action: done is a success, cancelled a warning, failed critical.
func (e *Extension) OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	var action, severity, outcome string
	switch j.State {
	case job.StateDone:
		action, severity, outcome = ActionJobDone, SeverityInfo, OutcomeSuccess
	case job.StateCancelled:
		action, severity, outcome = ActionJobCancelled, SeverityWarning, OutcomeFailure
	default:
		action, severity, outcome = ActionJobFailed, SeverityCritical, OutcomeFailure
	}
	return e.record(ctx, action, severity, outcome, j,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(ctx context.Context, action, severity, outcome string, j *job.Job, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	meta["command"] = j.Command
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			continue
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: j.ID.String(),
		OwnerID:    j.OwnerID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record event",
			slog.String("action", action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
