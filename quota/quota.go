// Package quota enforces plan-derived submission limits. Quota checks
// run at submit time, before any job row is created, so no job ever
// exists in a state doomed to fail on dispatch.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/job"
)

// Policy decides whether an owner may submit one more job for a command.
type Policy interface {
	// Check returns nil if the submission is allowed, or an error
	// wrapping conduct.ErrQuotaExceeded if the owner's quota for the
	// command is exhausted.
	Check(ctx context.Context, owner, command string) error
}

// Unlimited returns a policy that allows everything.
func Unlimited() Policy { return unlimited{} }

type unlimited struct{}

func (unlimited) Check(context.Context, string, string) error { return nil }

// Monthly caps submissions per owner, command, and calendar month (UTC).
// Usage is counted from the store, so quota state survives restarts and
// counts every submission regardless of its eventual terminal state.
// Commands without a configured limit are unlimited.
type Monthly struct {
	store  job.Store
	limits map[string]int
	now    func() time.Time
}

// MonthlyOption configures a Monthly policy.
type MonthlyOption func(*Monthly)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MonthlyOption {
	return func(m *Monthly) { m.now = now }
}

// NewMonthly creates a monthly quota policy. limits maps command name to
// the maximum submissions per calendar month; a zero limit forbids the
// command outright.
func NewMonthly(store job.Store, limits map[string]int, opts ...MonthlyOption) *Monthly {
	m := &Monthly{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check implements Policy.
func (m *Monthly) Check(ctx context.Context, owner, command string) error {
	limit, ok := m.limits[command]
	if !ok {
		return nil
	}
	if limit <= 0 {
		return fmt.Errorf("%w: command %q not available on this plan", conduct.ErrQuotaExceeded, command)
	}

	used, err := m.store.CountJobs(ctx, job.CountOpts{
		Owner:   owner,
		Command: command,
		Since:   monthStart(m.now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("quota: count jobs: %w", err)
	}
	if used >= int64(limit) {
		return fmt.Errorf("%w: command %q used %d of %d this month", conduct.ErrQuotaExceeded, command, used, limit)
	}
	return nil
}

// monthStart returns midnight UTC on the first of t's month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
