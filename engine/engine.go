// Package engine wires all Conduct subsystems together: the command
// registry, extension registry, governor, admission queue, scheduler,
// stream broker, and quota policy. It exposes the operations the HTTP
// layer (or an embedding application) calls: Submit, Get, List, Cancel,
// Delete, and Subscribe.
//
// The engine package sits above all subsystem packages and below the
// application layer; the root conduct package defines configuration and
// the error taxonomy and so cannot import the subsystems back.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
	mw "github.com/conducthq/conduct/middleware"
	"github.com/conducthq/conduct/queue"
	"github.com/conducthq/conduct/quota"
	"github.com/conducthq/conduct/recovery"
	"github.com/conducthq/conduct/runner"
	"github.com/conducthq/conduct/store"
	"github.com/conducthq/conduct/stream"
)

// Engine is the orchestration core facade.
type Engine struct {
	cfg    conduct.Config
	logger *slog.Logger

	store      store.Store
	cache      *job.Cache
	registry   *job.Registry
	extensions *ext.Registry
	broker     *stream.Broker
	governor   *queue.Governor
	admission  *queue.Admission
	scheduler  *runner.Scheduler
	quota      quota.Policy

	mws        []mw.Middleware
	deferred   []ext.Extension
	bufferSize int

	started atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg conduct.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithQuota sets the submission quota policy. Defaults to unlimited.
func WithQuota(p quota.Policy) Option {
	return func(e *Engine) { e.quota = p }
}

// WithExtension registers an extension with the engine.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.deferred = append(e.deferred, x) }
}

// WithMiddleware appends middleware to the execution chain, after the
// built-in recover and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithStreamBufferSize sets the per-subscriber live event buffer.
func WithStreamBufferSize(n int) Option {
	return func(e *Engine) { e.bufferSize = n }
}

// Build creates an Engine. Call Start before submitting jobs.
func Build(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:        conduct.DefaultConfig(),
		logger:     slog.Default(),
		quota:      quota.Unlimited(),
		bufferSize: stream.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, conduct.ErrNoStore
	}

	e.cache = job.NewCache()
	e.registry = job.NewRegistry()
	e.extensions = ext.NewRegistry(e.logger)

	// The broker registers first so stream fan-out sees lifecycle events
	// before any user extension runs.
	e.broker = stream.NewBroker(e.logger, stream.WithBufferSize(e.bufferSize))
	e.extensions.Register(e.broker)
	for _, x := range e.deferred {
		e.extensions.Register(x)
	}

	var governorOpts []queue.GovernorOption
	if e.cfg.SubmitRate > 0 {
		governorOpts = append(governorOpts, queue.WithSubmitRate(e.cfg.SubmitRate, e.cfg.SubmitBurst))
	}
	e.governor = queue.NewGovernor(e.cfg.GlobalHeavySlots, e.cfg.PerUserHeavySlots, governorOpts...)
	e.admission = queue.NewAdmission()

	mws := append([]mw.Middleware{
		mw.Recover(e.logger),
		mw.Logging(e.logger),
	}, e.mws...)
	executor := runner.NewExecutor(e.registry, e.extensions, e.store, e.cache, e.logger, mws...)
	e.scheduler = runner.NewScheduler(e.admission, e.governor, executor, e.cache, e.logger)

	return e, nil
}

// Register registers a typed command definition with the engine.
func Register[T any](e *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(e.registry, def)
}

// Start runs the recovery sweep, reloads persisted jobs, and begins
// admitting. The sweep completes before any submission is accepted, so
// the governor's slot counters always start from zero.
func (e *Engine) Start(ctx context.Context) error {
	if e.started.Load() {
		return nil
	}

	if _, err := recovery.Sweep(ctx, e.store, e.logger); err != nil {
		return fmt.Errorf("engine: recovery sweep: %w", err)
	}

	// Seed the cache from the store and re-enqueue surviving queued
	// jobs; their original queued_at keeps their queue rank.
	jobs, err := e.store.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		return fmt.Errorf("engine: load jobs: %w", err)
	}
	e.cache.Load(jobs)

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("engine: start scheduler: %w", err)
	}
	for _, j := range jobs {
		if j.State == job.StateQueued {
			e.scheduler.Enqueue(j)
		}
	}

	e.started.Store(true)
	e.logger.Info("engine started",
		slog.Int("jobs_loaded", len(jobs)),
		slog.Int("global_heavy_slots", e.cfg.GlobalHeavySlots),
		slog.Int("per_user_heavy_slots", e.cfg.PerUserHeavySlots),
	)
	return nil
}

// Stop gracefully shuts down: the scheduler drains within the
// configured shutdown timeout, then extensions are notified.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return nil
	}
	e.started.Store(false)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := e.scheduler.Stop(ctx)
	e.extensions.EmitShutdown(context.WithoutCancel(ctx))
	e.logger.Info("engine stopped")
	return err
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// Submit validates, quota-checks, persists, and enqueues one job.
// All checks run before the row is created, so no job ever exists in a
// state doomed to fail on dispatch.
func (e *Engine) Submit(ctx context.Context, owner, command string, params json.RawMessage) (*job.Job, error) {
	if !e.started.Load() {
		return nil, conduct.ErrNotStarted
	}

	entry, err := e.registry.Resolve(command, params)
	if err != nil {
		return nil, err
	}
	if !e.governor.AllowSubmit(owner) {
		return nil, fmt.Errorf("%w: owner %q", conduct.ErrRateLimited, owner)
	}
	if err := e.quota.Check(ctx, owner, command); err != nil {
		return nil, err
	}

	j := job.New(owner, command, params, entry.Class)
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	e.cache.Put(j)
	e.extensions.EmitJobQueued(ctx, j)
	e.scheduler.Enqueue(j)

	out := j.Clone()
	out.QueuePosition = e.scheduler.Position(j.ID)
	return out, nil
}

// Get returns a snapshot of one job. A non-empty owner scopes the
// lookup: jobs belonging to someone else read as not found, so the
// error never discloses whether the id exists.
func (e *Engine) Get(ctx context.Context, jobID id.JobID, owner string) (*job.Job, error) {
	j, ok := e.cache.Get(jobID)
	if !ok {
		stored, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		j = stored
	}
	if owner != "" && j.OwnerID != owner {
		return nil, conduct.ErrJobNotFound
	}
	if j.State == job.StateQueued {
		j.QueuePosition = e.scheduler.Position(jobID)
	}
	return j, nil
}

// List returns the owner's jobs, newest first, with queue positions
// annotated on queued jobs.
func (e *Engine) List(ctx context.Context, owner string, opts job.ListOpts) ([]*job.Job, error) {
	opts.Owner = owner
	jobs, err := e.store.ListJobs(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.State == job.StateQueued {
			j.QueuePosition = e.scheduler.Position(j.ID)
		}
	}
	return jobs, nil
}

// Cancel requests cancellation. Queued jobs transition to cancelled
// immediately; running jobs are signalled and reach cancelled only once
// the handler acknowledges. If the handler finishes naturally first,
// the natural terminal state wins. Cancelling an already-terminal job
// is a no-op success.
func (e *Engine) Cancel(ctx context.Context, jobID id.JobID, owner string) (*job.Job, error) {
	j, err := e.Get(ctx, jobID, owner)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return j, nil
	}

	switch e.scheduler.Cancel(jobID) {
	case runner.CancelDetached:
		if err := e.scheduler.Abort(ctx, j); err != nil {
			return nil, err
		}
	case runner.CancelSignalled, runner.CancelUnknown:
		// The runner owns the terminal transition; the caller observes
		// it on a later read.
	}

	return e.Get(ctx, jobID, owner)
}

// Delete removes a terminal job. Deleting a queued or running job fails
// with ErrConflict.
func (e *Engine) Delete(ctx context.Context, jobID id.JobID, owner string) error {
	j, err := e.Get(ctx, jobID, owner)
	if err != nil {
		return err
	}
	if !j.State.Terminal() {
		return fmt.Errorf("%w: cannot delete job in state %q", conduct.ErrConflict, j.State)
	}

	if err := e.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	e.cache.Delete(jobID)
	e.broker.Remove(jobID)
	return nil
}

// Subscribe attaches to a job's log stream. The returned channel
// replays everything emitted so far and then tails live output; it is
// closed after the done marker. The returned func detaches the
// subscriber and must be called when the consumer is finished.
//
// A queued job yields exactly one queued marker and closes — the caller
// is expected to re-subscribe once the job is running. A terminal job
// whose broadcast channel is gone (e.g. after a restart) yields a
// replay synthesized from the persisted log followed by the done
// marker.
func (e *Engine) Subscribe(ctx context.Context, jobID id.JobID, owner string) (<-chan stream.Event, func(), error) {
	j, err := e.Get(ctx, jobID, owner)
	if err != nil {
		return nil, nil, err
	}

	if j.State == job.StateQueued {
		return synthesize(nil, stream.Event{
			Type:      stream.EventQueued,
			Timestamp: time.Now().UTC(),
		}), func() {}, nil
	}

	if sub, ok := e.broker.Attach(jobID); ok {
		detach := func() { e.broker.Detach(jobID, sub.ID()) }
		return sub.C(), detach, nil
	}

	// No live channel. For a terminal job, replay the persisted log and
	// finish with the done marker. A running job without a channel does
	// not happen in practice (the recovery sweep cancels orphans), but
	// the same replay degrades gracefully: the client re-subscribes.
	var final *stream.Event
	if j.State.Terminal() {
		final = &stream.Event{
			Type:      stream.EventDone,
			State:     j.State,
			Timestamp: time.Now().UTC(),
		}
	}
	return synthesizeLines(j.LogLines(), final), func() {}, nil
}

// synthesize builds a closed channel carrying the given events.
func synthesize(lines []stream.Event, final stream.Event) <-chan stream.Event {
	ch := make(chan stream.Event, len(lines)+1)
	for _, evt := range lines {
		ch <- evt
	}
	ch <- final
	close(ch)
	return ch
}

// synthesizeLines builds a closed channel replaying persisted log lines.
func synthesizeLines(lines []string, final *stream.Event) <-chan stream.Event {
	capacity := len(lines)
	if final != nil {
		capacity++
	}
	ch := make(chan stream.Event, capacity)
	now := time.Now().UTC()
	for i, line := range lines {
		ch <- stream.Event{
			Type:      stream.EventLine,
			Seq:       i + 1,
			Line:      line,
			Timestamp: now,
		}
	}
	if final != nil {
		ch <- *final
	}
	close(ch)
	return ch
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Registry returns the command registry.
func (e *Engine) Registry() *job.Registry { return e.registry }

// Store returns the persistence backend.
func (e *Engine) Store() store.Store { return e.store }

// Commands returns all registered command names.
func (e *Engine) Commands() []string { return e.registry.Names() }

// WaitingCount returns the number of heavy jobs in the admission queue.
func (e *Engine) WaitingCount() int { return e.scheduler.WaitingCount() }
