// Package runner provides the job execution engine — an Executor that
// invokes registered command handlers through middleware and drives each
// job to exactly one terminal state, and a Scheduler that admits heavy
// jobs against the governor and tracks running jobs for cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/job"
	"github.com/conducthq/conduct/middleware"
)

// Executor runs a single job through middleware and the registered
// handler, then maps the handler's outcome onto the job's terminal
// state, persists it, and emits lifecycle events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	cache      *job.Cache
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	cache *job.Cache,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		cache:      cache,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job to its terminal state. The passed context carries
// the cancellation signal for this job; cancelling it requests a
// cooperative abort, it does not abandon persistence.
//
// Outcome mapping:
//   - handler returns nil → done, output references recorded
//   - handler error wraps ErrCancelled or context.Canceled → cancelled
//   - any other handler error → failed, with an ERROR log line appended
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	entry, ok := e.registry.Get(j.Command)
	if !ok {
		// Submission validates commands, so this only happens when the
		// process restarted with a different registration set.
		return e.finish(ctx, j, job.StateFailed, nil, time.Time{},
			fmt.Errorf("%w: %q", conduct.ErrUnknownCommand, j.Command))
	}

	if err := e.markRunning(ctx, j); err != nil {
		return err
	}

	rt := newRuntime(ctx, j, e.store, e.cache, e.extensions, e.logger)

	var res *job.Result
	terminal := func(ctx context.Context) error {
		r, err := entry.Handler(ctx, rt, j.Params)
		res = r
		return err
	}

	start := time.Now()
	err := e.mw(ctx, j, terminal)

	final := terminalStateFor(err)
	if final == job.StateFailed {
		// The failure reason goes into the log so stream subscribers and
		// later status reads both see it.
		rt.Logf("ERROR: %s", err.Error())
	}

	return e.finish(ctx, j, final, res, start, err)
}

// Abort terminalizes a job that never started as cancelled. Used when a
// cancellation request lands before the handler is invoked.
func (e *Executor) Abort(ctx context.Context, j *job.Job) error {
	return e.finish(ctx, j, job.StateCancelled, nil, time.Time{}, nil)
}

// markRunning transitions the job to running and announces the start.
// The store write precedes the cache write, and the started event fires
// last so the stream channel opens only for a persisted running job.
func (e *Executor) markRunning(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	j.State = job.StateRunning
	j.StartedAt = &now
	j.QueuePosition = 0

	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("failed to mark job running",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.cache.Put(j)
	e.extensions.EmitJobStarted(ctx, j)
	return nil
}

// finish records the terminal state, output references, and finish time,
// then emits JobFinished exactly once. Persistence is detached from the
// cancellation signal.
func (e *Executor) finish(ctx context.Context, j *job.Job, final job.State, res *job.Result, start time.Time, execErr error) error {
	now := time.Now().UTC()
	j.State = final
	j.FinishedAt = &now
	if final == job.StateDone && res != nil {
		j.ArtefactIDs = res.ArtefactIDs
		j.PacketID = res.PacketID
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := e.store.UpdateJob(persistCtx, j); err != nil {
		e.logger.Error("failed to persist terminal state",
			slog.String("job_id", j.ID.String()),
			slog.String("state", string(final)),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.cache.Put(j)

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}
	e.extensions.EmitJobFinished(persistCtx, j, elapsed)

	if final == job.StateFailed {
		return execErr
	}
	return nil
}

// terminalStateFor maps a handler outcome to the job's terminal state.
func terminalStateFor(err error) job.State {
	switch {
	case err == nil:
		return job.StateDone
	case errors.Is(err, conduct.ErrCancelled), errors.Is(err, context.Canceled):
		return job.StateCancelled
	default:
		return job.StateFailed
	}
}
