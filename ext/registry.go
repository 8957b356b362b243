package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/conducthq/conduct/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobQueuedEntry struct {
	name string
	hook JobQueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobLoggedEntry struct {
	name string
	hook JobLogged
}

type jobFinishedEntry struct {
	name string
	hook JobFinished
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobQueued   []jobQueuedEntry
	jobStarted  []jobStartedEntry
	jobLogged   []jobLoggedEntry
	jobFinished []jobFinishedEntry
	shutdown    []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobQueued); ok {
		r.jobQueued = append(r.jobQueued, jobQueuedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobLogged); ok {
		r.jobLogged = append(r.jobLogged, jobLoggedEntry{name, h})
	}
	if h, ok := e.(JobFinished); ok {
		r.jobFinished = append(r.jobFinished, jobFinishedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitJobQueued notifies all extensions that implement JobQueued.
func (r *Registry) EmitJobQueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobQueued {
		if err := e.hook.OnJobQueued(ctx, j); err != nil {
			r.logHookError("OnJobQueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobLogged notifies all extensions that implement JobLogged.
func (r *Registry) EmitJobLogged(ctx context.Context, j *job.Job, seq int, line string) {
	for _, e := range r.jobLogged {
		if err := e.hook.OnJobLogged(ctx, j, seq, line); err != nil {
			r.logHookError("OnJobLogged", e.name, err)
		}
	}
}

// EmitJobFinished notifies all extensions that implement JobFinished.
func (r *Registry) EmitJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobFinished {
		if err := e.hook.OnJobFinished(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobFinished", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
