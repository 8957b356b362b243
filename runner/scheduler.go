package runner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
	"github.com/conducthq/conduct/queue"
)

// CancelOutcome reports what a Cancel call actually did.
type CancelOutcome int

const (
	// CancelUnknown means the job was neither waiting nor tracked as
	// running. The cancel request is remembered and honored if the job
	// is admitted before the caller terminalizes it.
	CancelUnknown CancelOutcome = iota
	// CancelDetached means the job was removed from the admission queue
	// before ever starting. The caller owns the terminal transition.
	CancelDetached
	// CancelSignalled means the running job's context was cancelled.
	// The executor owns the terminal transition.
	CancelSignalled
)

// Scheduler admits heavy jobs against the governor in queue order and
// launches each admitted job on its own goroutine. Light jobs bypass
// admission entirely. The scheduler also tracks per-job cancel functions
// so a cancellation request can reach the right running job.
type Scheduler struct {
	admission *queue.Admission
	governor  *queue.Governor
	executor  *Executor
	cache     *job.Cache
	logger    *slog.Logger

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	activeMu      sync.Mutex
	active        map[string]context.CancelFunc
	pendingCancel map[string]bool
}

// NewScheduler creates a scheduler.
func NewScheduler(
	admission *queue.Admission,
	governor *queue.Governor,
	executor *Executor,
	cache *job.Cache,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		admission:     admission,
		governor:      governor,
		executor:      executor,
		cache:         cache,
		logger:        logger,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		active:        make(map[string]context.CancelFunc),
		pendingCancel: make(map[string]bool),
	}
}

// Start launches the admission loop. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.admitLoop()

	s.logger.Info("scheduler started")
	return nil
}

// Stop signals the admission loop to exit and waits for in-flight jobs.
// If the context expires first, active job contexts are cancelled and
// the wait resumes — handlers then abort cooperatively.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling active jobs")
		s.cancelActive()
		<-done
	}
	return nil
}

// Enqueue hands a freshly persisted queued job to the scheduler. Heavy
// jobs enter the admission queue; light jobs launch immediately without
// consuming governor slots.
func (s *Scheduler) Enqueue(j *job.Job) {
	if j.Class == job.ClassHeavy {
		s.admission.Push(j.ID, j.OwnerID, j.QueuedAt)
		s.kick()
		return
	}

	s.wg.Add(1)
	go s.run(j.ID, j.OwnerID, false)
}

// Cancel requests cancellation of a job the scheduler knows about.
// See CancelOutcome for who owns the resulting terminal transition.
func (s *Scheduler) Cancel(jobID id.JobID) CancelOutcome {
	if s.admission.Remove(jobID) {
		return CancelDetached
	}

	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if cancel, ok := s.active[jobID.String()]; ok {
		cancel()
		return CancelSignalled
	}

	// The job may be in the window between admission pop and execution
	// start. Remember the request; run() checks before executing.
	s.pendingCancel[jobID.String()] = true
	return CancelUnknown
}

// Abort terminalizes as cancelled a job that Cancel detached from the
// admission queue.
func (s *Scheduler) Abort(ctx context.Context, j *job.Job) error {
	return s.executor.Abort(ctx, j)
}

// Position returns the job's 1-based rank in the admission queue, or 0
// if the job is not waiting.
func (s *Scheduler) Position(jobID id.JobID) int {
	return s.admission.Position(jobID)
}

// WaitingCount returns the number of jobs in the admission queue.
func (s *Scheduler) WaitingCount() int {
	return s.admission.Len()
}

// kick nudges the admission loop without blocking.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// admitLoop drains the admission queue whenever woken: each iteration
// pops every currently admissible job (governor slots claimed inside
// the pop) and launches it.
func (s *Scheduler) admitLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		}

		for {
			jobID, owner, ok := s.admission.Next(s.governor.TryAcquire)
			if !ok {
				break
			}
			s.wg.Add(1)
			go s.run(jobID, owner, true)
		}
	}
}

// run executes one job on its own goroutine. For heavy jobs the caller
// has already claimed governor slots; they are released here, and the
// admission loop is woken so a waiting job can take the freed slot.
func (s *Scheduler) run(jobID id.JobID, owner string, heavy bool) {
	defer s.wg.Done()
	if heavy {
		defer func() {
			s.governor.Release(owner)
			s.kick()
		}()
	}

	j, ok := s.cache.Get(jobID)
	if !ok || j.State != job.StateQueued {
		// Cancelled (and terminalized) after admission pop, or deleted.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.activeMu.Lock()
	if s.pendingCancel[jobID.String()] {
		delete(s.pendingCancel, jobID.String())
		s.activeMu.Unlock()
		cancel()
		// Cancel arrived in the launch window: never start the handler.
		if err := s.executor.Abort(context.Background(), j); err != nil {
			s.logger.Error("failed to abort job",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	s.active[jobID.String()] = cancel
	s.activeMu.Unlock()

	defer func() {
		s.activeMu.Lock()
		delete(s.active, jobID.String())
		delete(s.pendingCancel, jobID.String())
		s.activeMu.Unlock()
		cancel()
	}()

	if err := s.executor.Execute(ctx, j); err != nil {
		s.logger.Debug("job execution failed",
			slog.String("job_id", jobID.String()),
			slog.String("command", j.Command),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) cancelActive() {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	for jobID, cancel := range s.active {
		s.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
