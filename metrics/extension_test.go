package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/conducthq/conduct/job"
)

func TestLifecycleCounters(t *testing.T) {
	m := New()
	ctx := context.Background()

	j := job.New("alice", "country_refresh", nil, job.ClassHeavy)
	m.OnJobQueued(ctx, j)

	if got := testutil.ToFloat64(m.jobsQueued); got != 1 {
		t.Fatalf("queued gauge = %v, want 1", got)
	}

	now := time.Now().UTC()
	j.State = job.StateRunning
	j.StartedAt = &now
	m.OnJobStarted(ctx, j)

	if got := testutil.ToFloat64(m.jobsQueued); got != 0 {
		t.Fatalf("queued gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.jobsRunning); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}

	m.OnJobLogged(ctx, j, 1, "line")
	m.OnJobLogged(ctx, j, 2, "line")
	if got := testutil.ToFloat64(m.logLines); got != 2 {
		t.Fatalf("log lines = %v, want 2", got)
	}

	j.State = job.StateDone
	m.OnJobFinished(ctx, j, 2*time.Second)

	if got := testutil.ToFloat64(m.jobsRunning); got != 0 {
		t.Fatalf("running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("country_refresh", "done")); got != 1 {
		t.Fatalf("finished counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobsSubmitted.WithLabelValues("country_refresh", "heavy")); got != 1 {
		t.Fatalf("submitted counter = %v, want 1", got)
	}
}

func TestQueuedCancellationAdjustsQueuedGauge(t *testing.T) {
	m := New()
	ctx := context.Background()

	j := job.New("alice", "echo", nil, job.ClassHeavy)
	m.OnJobQueued(ctx, j)

	// Cancelled before ever starting: StartedAt stays nil.
	j.State = job.StateCancelled
	m.OnJobFinished(ctx, j, 0)

	if got := testutil.ToFloat64(m.jobsQueued); got != 0 {
		t.Fatalf("queued gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.jobsRunning); got != 0 {
		t.Fatalf("running gauge = %v, want 0", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	if m.Handler() == nil {
		t.Fatal("expected non-nil handler")
	}
	if m.Registry() == nil {
		t.Fatal("expected non-nil registry")
	}
}
