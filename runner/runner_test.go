package runner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
	"github.com/conducthq/conduct/middleware"
	"github.com/conducthq/conduct/queue"
	"github.com/conducthq/conduct/store/memory"
)

type env struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      *memory.Store
	cache      *job.Cache
	executor   *Executor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.Default()
	e := &env{
		registry:   job.NewRegistry(),
		extensions: ext.NewRegistry(logger),
		store:      memory.New(),
		cache:      job.NewCache(),
	}
	e.executor = NewExecutor(e.registry, e.extensions, e.store, e.cache, logger,
		middleware.Recover(logger),
	)
	return e
}

// seed persists a queued job and mirrors it into the cache.
func (e *env) seed(t *testing.T, j *job.Job) {
	t.Helper()
	if err := e.store.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	e.cache.Put(j)
}

// finishRecorder captures terminal notifications.
type finishRecorder struct {
	mu       sync.Mutex
	finished []*job.Job
}

func (r *finishRecorder) Name() string { return "finish-recorder" }

func (r *finishRecorder) OnJobFinished(_ context.Context, j *job.Job, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, j.Clone())
	return nil
}

func (r *finishRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finished)
}

// ──────────────────────────────────────────────────
// Executor tests
// ──────────────────────────────────────────────────

func TestExecuteSuccess(t *testing.T) {
	e := newEnv(t)
	rec := &finishRecorder{}
	e.extensions.Register(rec)

	packet := id.NewPacketID()
	job.RegisterDefinition(e.registry, job.NewDefinition("report", job.ClassHeavy,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			rt.Log("collecting")
			rt.Log("summarizing")
			return &job.Result{
				ArtefactIDs: []string{"artf_one", "artf_two"},
				PacketID:    packet,
			}, nil
		}))

	j := job.New("alice", "report", nil, job.ClassHeavy)
	e.seed(t, j)

	if err := e.executor.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, err := e.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateDone {
		t.Fatalf("got state %q, want done", got.State)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("expected start and finish timestamps")
	}
	if got.LogText != "collecting\nsummarizing" {
		t.Fatalf("got log %q", got.LogText)
	}
	if len(got.ArtefactIDs) != 2 || got.PacketID != packet {
		t.Fatalf("output references not recorded: %+v", got)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 finish event, got %d", rec.count())
	}

	cached, ok := e.cache.Get(j.ID)
	if !ok || cached.State != job.StateDone {
		t.Fatal("cache not updated to terminal state")
	}
}

func TestExecuteFailureAppendsErrorLine(t *testing.T) {
	e := newEnv(t)

	job.RegisterDefinition(e.registry, job.NewDefinition("flaky", job.ClassLight,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			rt.Log("starting")
			return nil, errors.New("upstream unavailable")
		}))

	j := job.New("alice", "flaky", nil, job.ClassLight)
	e.seed(t, j)

	if err := e.executor.Execute(context.Background(), j); err == nil {
		t.Fatal("expected execution error")
	}

	got, _ := e.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
	lines := got.LogLines()
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "ERROR: ") || !strings.Contains(last, "upstream unavailable") {
		t.Fatalf("expected trailing ERROR line, got %q", last)
	}
}

func TestExecuteCancelledHandler(t *testing.T) {
	e := newEnv(t)

	job.RegisterDefinition(e.registry, job.NewDefinition("cooperative", job.ClassHeavy,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			rt.Log("partial work")
			return nil, conduct.ErrCancelled
		}))

	j := job.New("alice", "cooperative", nil, job.ClassHeavy)
	e.seed(t, j)

	if err := e.executor.Execute(context.Background(), j); err != nil {
		t.Fatalf("cancellation must not surface as execution error, got %v", err)
	}

	got, _ := e.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateCancelled {
		t.Fatalf("got state %q, want cancelled", got.State)
	}
	// Partial log output survives cancellation.
	if got.LogText != "partial work" {
		t.Fatalf("got log %q", got.LogText)
	}
	if strings.Contains(got.LogText, "ERROR") {
		t.Fatal("cancellation must not append an ERROR line")
	}
}

func TestExecutePanicBecomesFailed(t *testing.T) {
	e := newEnv(t)

	job.RegisterDefinition(e.registry, job.NewDefinition("panicky", job.ClassLight,
		func(_ context.Context, _ job.Runtime, _ struct{}) (*job.Result, error) {
			panic("boom")
		}))

	j := job.New("alice", "panicky", nil, job.ClassLight)
	e.seed(t, j)

	if err := e.executor.Execute(context.Background(), j); err == nil {
		t.Fatal("expected error from panicking handler")
	}

	got, _ := e.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
}

func TestExecuteUnknownCommandFails(t *testing.T) {
	e := newEnv(t)

	j := job.New("alice", "never-registered", nil, job.ClassLight)
	e.seed(t, j)

	if err := e.executor.Execute(context.Background(), j); !errors.Is(err, conduct.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	got, _ := e.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
}

func TestAbortMarksCancelled(t *testing.T) {
	e := newEnv(t)
	rec := &finishRecorder{}
	e.extensions.Register(rec)

	j := job.New("alice", "echo", nil, job.ClassHeavy)
	e.seed(t, j)

	if err := e.executor.Abort(context.Background(), j); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got, _ := e.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateCancelled {
		t.Fatalf("got state %q, want cancelled", got.State)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected FinishedAt on aborted job")
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 finish event, got %d", rec.count())
	}
}

// ──────────────────────────────────────────────────
// Scheduler tests
// ──────────────────────────────────────────────────

func newScheduler(e *env, global, perUser int) *Scheduler {
	return NewScheduler(queue.NewAdmission(), queue.NewGovernor(global, perUser),
		e.executor, e.cache, slog.Default())
}

func waitForState(t *testing.T, e *env, jobID id.JobID, want job.State) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := e.cache.Get(jobID); ok && j.State == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := e.cache.Get(jobID)
	t.Fatalf("job %s never reached %s, last seen %+v", jobID, want, j)
	return nil
}

func TestSchedulerRunsLightJobImmediately(t *testing.T) {
	e := newEnv(t)
	job.RegisterDefinition(e.registry, job.NewDefinition("echo", job.ClassLight,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			rt.Log("hello")
			return &job.Result{}, nil
		}))

	s := newScheduler(e, 1, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	j := job.New("alice", "echo", nil, job.ClassLight)
	e.seed(t, j)
	s.Enqueue(j)

	got := waitForState(t, e, j.ID, job.StateDone)
	if got.LogText != "hello" {
		t.Fatalf("got log %q", got.LogText)
	}
}

func TestSchedulerEnforcesPerUserCap(t *testing.T) {
	e := newEnv(t)

	release := make(chan struct{})
	started := make(chan string, 8)
	job.RegisterDefinition(e.registry, job.NewDefinition("slow", job.ClassHeavy,
		func(_ context.Context, _ job.Runtime, _ struct{}) (*job.Result, error) {
			started <- "run"
			<-release
			return &job.Result{}, nil
		}))

	// Plenty of global slots, one per user.
	s := newScheduler(e, 8, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(release)
		s.Stop(context.Background())
	}()

	first := job.New("alice", "slow", nil, job.ClassHeavy)
	second := job.New("alice", "slow", nil, job.ClassHeavy)
	second.QueuedAt = first.QueuedAt.Add(time.Millisecond)
	for _, j := range []*job.Job{first, second} {
		e.seed(t, j)
		s.Enqueue(j)
	}

	<-started
	waitForState(t, e, first.ID, job.StateRunning)

	// The second job must be held back by alice's cap.
	select {
	case <-started:
		t.Fatal("second job ran despite per-user cap of 1")
	case <-time.After(100 * time.Millisecond):
	}
	if p := s.Position(second.ID); p != 1 {
		t.Fatalf("expected waiting position 1, got %d", p)
	}

	// Releasing the first job frees the slot.
	release <- struct{}{}
	<-started
	waitForState(t, e, second.ID, job.StateRunning)
}

func TestSchedulerAdmitsInQueueOrder(t *testing.T) {
	e := newEnv(t)

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	job.RegisterDefinition(e.registry, job.NewDefinition("ordered", job.ClassHeavy,
		func(_ context.Context, _ job.Runtime, _ struct{}) (*job.Result, error) {
			<-release
			return &job.Result{}, nil
		}))

	// One global slot forces strictly serial admission.
	s := newScheduler(e, 1, 0)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	base := time.Now().UTC()
	var jobs []*job.Job
	for i, owner := range []string{"a", "b", "c"} {
		j := job.New(owner, "ordered", nil, job.ClassHeavy)
		j.QueuedAt = base.Add(time.Duration(i) * time.Millisecond)
		e.seed(t, j)
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		s.Enqueue(j)
	}

	for range jobs {
		release <- struct{}{}
	}
	for _, j := range jobs {
		got := waitForState(t, e, j.ID, job.StateDone)
		mu.Lock()
		order = append(order, got.OwnerID)
		mu.Unlock()
	}

	// Serial admission through one slot preserves enqueue order.
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("admission order violated: %v", order)
	}
}

func TestSchedulerCancelQueued(t *testing.T) {
	e := newEnv(t)

	release := make(chan struct{})
	job.RegisterDefinition(e.registry, job.NewDefinition("slow", job.ClassHeavy,
		func(_ context.Context, _ job.Runtime, _ struct{}) (*job.Result, error) {
			<-release
			return &job.Result{}, nil
		}))

	s := newScheduler(e, 1, 0)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(release)
		s.Stop(context.Background())
	}()

	blocker := job.New("alice", "slow", nil, job.ClassHeavy)
	waiting := job.New("bob", "slow", nil, job.ClassHeavy)
	waiting.QueuedAt = blocker.QueuedAt.Add(time.Millisecond)
	for _, j := range []*job.Job{blocker, waiting} {
		e.seed(t, j)
		s.Enqueue(j)
	}
	waitForState(t, e, blocker.ID, job.StateRunning)

	if got := s.Cancel(waiting.ID); got != CancelDetached {
		t.Fatalf("expected CancelDetached, got %v", got)
	}
	if p := s.Position(waiting.ID); p != 0 {
		t.Fatalf("cancelled job still ranked at %d", p)
	}
}

func TestSchedulerCancelRunning(t *testing.T) {
	e := newEnv(t)

	startedCh := make(chan struct{})
	job.RegisterDefinition(e.registry, job.NewDefinition("cancellable", job.ClassHeavy,
		func(_ context.Context, rt job.Runtime, _ struct{}) (*job.Result, error) {
			close(startedCh)
			<-rt.Done()
			return nil, conduct.ErrCancelled
		}))

	s := newScheduler(e, 1, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	j := job.New("alice", "cancellable", nil, job.ClassHeavy)
	e.seed(t, j)
	s.Enqueue(j)

	<-startedCh
	waitForState(t, e, j.ID, job.StateRunning)

	if got := s.Cancel(j.ID); got != CancelSignalled {
		t.Fatalf("expected CancelSignalled, got %v", got)
	}
	waitForState(t, e, j.ID, job.StateCancelled)
}

func TestSchedulerFreedSlotAdmitsNextOwner(t *testing.T) {
	e := newEnv(t)

	release := make(chan struct{}, 2)
	job.RegisterDefinition(e.registry, job.NewDefinition("slow", job.ClassHeavy,
		func(_ context.Context, _ job.Runtime, _ struct{}) (*job.Result, error) {
			<-release
			return &job.Result{}, nil
		}))

	s := newScheduler(e, 1, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	alice := job.New("alice", "slow", nil, job.ClassHeavy)
	bob := job.New("bob", "slow", nil, job.ClassHeavy)
	bob.QueuedAt = alice.QueuedAt.Add(time.Millisecond)
	for _, j := range []*job.Job{alice, bob} {
		e.seed(t, j)
		s.Enqueue(j)
	}

	waitForState(t, e, alice.ID, job.StateRunning)
	release <- struct{}{}
	waitForState(t, e, alice.ID, job.StateDone)

	// Alice's terminal transition frees the global slot for bob.
	waitForState(t, e, bob.ID, job.StateRunning)
	release <- struct{}{}
	waitForState(t, e, bob.ID, job.StateDone)
}
