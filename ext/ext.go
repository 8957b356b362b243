// Package ext defines the extension system for Conduct.
// Extensions are notified of job lifecycle events (queued, started, log
// line emitted, finished) and can react to them — streaming, metrics,
// audit logging, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/conducthq/conduct/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobQueued is called after a job row is committed in queued state.
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a runner begins executing a job, after the
// running transition has been committed to the store.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobLogged is called for every log line a handler emits, in emission
// order. The line has already been persisted when the hook fires.
type JobLogged interface {
	OnJobLogged(ctx context.Context, j *job.Job, seq int, line string) error
}

// JobFinished is called exactly once when a job reaches any terminal
// state (done, failed, or cancelled), after the terminal write committed.
type JobFinished interface {
	OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// Shutdown is called when the engine is shutting down gracefully.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
