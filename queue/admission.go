package queue

import (
	"sync"
	"time"

	"github.com/conducthq/conduct/id"
)

// entry is one waiting heavy job.
type entry struct {
	jobID    id.JobID
	owner    string
	queuedAt time.Time
}

// Admission orders waiting heavy jobs FIFO by QueuedAt ascending, ties
// broken by job id ascending, and computes each job's 1-based queue
// position under that ordering. A job whose owner is at their per-user
// cap is still ranked — position reflects queue order, not eligibility.
//
// It is safe for concurrent use.
type Admission struct {
	mu      sync.Mutex
	waiting []entry
}

// NewAdmission creates an empty admission queue.
func NewAdmission() *Admission {
	return &Admission{}
}

// Push inserts a job at its ordered slot. Jobs arrive roughly in
// QueuedAt order, so the insertion scan walks backwards from the tail.
func (a *Admission) Push(jobID id.JobID, owner string, queuedAt time.Time) {
	e := entry{jobID: jobID, owner: owner, queuedAt: queuedAt}

	a.mu.Lock()
	defer a.mu.Unlock()

	i := len(a.waiting)
	for i > 0 && after(a.waiting[i-1], e) {
		i--
	}
	a.waiting = append(a.waiting, entry{})
	copy(a.waiting[i+1:], a.waiting[i:])
	a.waiting[i] = e
}

// after reports whether x orders after y (QueuedAt ascending, id ascending).
func after(x, y entry) bool {
	if !x.queuedAt.Equal(y.queuedAt) {
		return x.queuedAt.After(y.queuedAt)
	}
	return x.jobID.String() > y.jobID.String()
}

// Remove deletes a job from the wait list, e.g. when a queued job is
// cancelled. Returns false if the job was not waiting.
func (a *Admission) Remove(jobID id.JobID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, e := range a.waiting {
		if e.jobID == jobID {
			a.waiting = append(a.waiting[:i], a.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the job's 1-based rank among all waiting heavy jobs,
// or 0 if the job is not waiting.
func (a *Admission) Position(jobID id.JobID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, e := range a.waiting {
		if e.jobID == jobID {
			return i + 1
		}
	}
	return 0
}

// Next scans the queue in order and pops the first job the admit
// predicate accepts (typically Governor.TryAcquire bound to the entry's
// owner), returning the job and its owner. Returns false if no waiting
// job is currently admissible — slots then stay idle until the next
// submission or release.
func (a *Admission) Next(admit func(owner string) bool) (id.JobID, string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, e := range a.waiting {
		if admit(e.owner) {
			owner := e.owner
			jobID := e.jobID
			a.waiting = append(a.waiting[:i], a.waiting[i+1:]...)
			return jobID, owner, true
		}
	}
	return id.Nil, "", false
}

// Len returns the number of waiting jobs.
func (a *Admission) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiting)
}
