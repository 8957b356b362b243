package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Governor decides whether a heavy job may enter the running state: a
// global slot and the owner's per-user slot must both be free. Light jobs
// never touch the Governor.
//
// Slot counters are not persisted. They start at zero after the recovery
// sweep has cleared every orphaned running row, and are incrementally
// maintained thereafter. It is safe for concurrent use.
type Governor struct {
	mu sync.Mutex

	maxGlobal  int
	maxPerUser int

	running int
	perUser map[string]int

	// Per-user submission throttling (optional).
	submitRate  float64
	submitBurst int
	limiters    map[string]*rate.Limiter
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithSubmitRate enables per-user submission throttling: the maximum
// sustained submissions per second and the token-bucket burst size.
// Burst defaults to 1 if zero.
func WithSubmitRate(perSecond float64, burst int) GovernorOption {
	return func(g *Governor) {
		g.submitRate = perSecond
		if burst <= 0 {
			burst = 1
		}
		g.submitBurst = burst
	}
}

// NewGovernor creates a Governor with the given global and per-user heavy
// slot counts. perUser zero means no per-user cap.
func NewGovernor(global, perUser int, opts ...GovernorOption) *Governor {
	g := &Governor{
		maxGlobal:  global,
		maxPerUser: perUser,
		perUser:    make(map[string]int),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquire attempts to claim both a global slot and the owner's
// per-user slot. If both are free it increments the counters and returns
// true. The caller MUST call Release when the job reaches a terminal
// state.
func (g *Governor) TryAcquire(owner string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxGlobal > 0 && g.running >= g.maxGlobal {
		return false
	}
	if g.maxPerUser > 0 && g.perUser[owner] >= g.maxPerUser {
		return false
	}

	g.running++
	g.perUser[owner]++
	return true
}

// Release frees the global slot and the owner's per-user slot.
func (g *Governor) Release(owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running > 0 {
		g.running--
	}
	if n := g.perUser[owner]; n > 1 {
		g.perUser[owner] = n - 1
	} else {
		delete(g.perUser, owner)
	}
}

// AllowSubmit checks the owner's submission rate limit. Always true when
// throttling is disabled.
func (g *Governor) AllowSubmit(owner string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.submitRate <= 0 {
		return true
	}
	lim, ok := g.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(g.submitRate), g.submitBurst)
		g.limiters[owner] = lim
	}
	return lim.Allow()
}

// Running returns the current number of running heavy jobs.
func (g *Governor) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// RunningFor returns the current number of running heavy jobs for one owner.
func (g *Governor) RunningFor(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.perUser[owner]
}
