package queue

import (
	"testing"
	"time"

	"github.com/conducthq/conduct/id"
)

// ---------------------------------------------------------------------------
// Governor basics
// ---------------------------------------------------------------------------

func TestGovernorGlobalSlots(t *testing.T) {
	g := NewGovernor(2, 0)

	if !g.TryAcquire("a") {
		t.Fatal("first acquire should succeed")
	}
	if !g.TryAcquire("b") {
		t.Fatal("second acquire should succeed")
	}
	if g.TryAcquire("c") {
		t.Fatal("third acquire should fail (global max 2)")
	}

	g.Release("a")
	if !g.TryAcquire("c") {
		t.Fatal("acquire should succeed after release")
	}
}

func TestGovernorPerUserCap(t *testing.T) {
	g := NewGovernor(10, 1)

	if !g.TryAcquire("alice") {
		t.Fatal("alice's first acquire should succeed")
	}
	if g.TryAcquire("alice") {
		t.Fatal("alice's second acquire should fail (per-user cap 1)")
	}
	if !g.TryAcquire("bob") {
		t.Fatal("bob should not be affected by alice's cap")
	}

	g.Release("alice")
	if !g.TryAcquire("alice") {
		t.Fatal("alice should reacquire after release")
	}
}

func TestGovernorNoPerUserCap(t *testing.T) {
	g := NewGovernor(3, 0)

	for i := range 3 {
		if !g.TryAcquire("solo") {
			t.Fatalf("acquire %d should succeed with no per-user cap", i)
		}
	}
	if g.Running() != 3 {
		t.Fatalf("expected 3 running, got %d", g.Running())
	}
	if g.RunningFor("solo") != 3 {
		t.Fatalf("expected 3 running for solo, got %d", g.RunningFor("solo"))
	}
}

func TestGovernorReleaseClearsOwner(t *testing.T) {
	g := NewGovernor(4, 2)
	g.TryAcquire("u")
	g.Release("u")

	if g.RunningFor("u") != 0 {
		t.Fatalf("expected 0 running for u, got %d", g.RunningFor("u"))
	}
	if g.Running() != 0 {
		t.Fatalf("expected 0 running, got %d", g.Running())
	}
}

// ---------------------------------------------------------------------------
// Submission throttling
// ---------------------------------------------------------------------------

func TestGovernorSubmitRate(t *testing.T) {
	g := NewGovernor(1, 0, WithSubmitRate(1.0, 1))

	if !g.AllowSubmit("u") {
		t.Fatal("first submit should pass (burst)")
	}
	if g.AllowSubmit("u") {
		t.Fatal("second immediate submit should be throttled")
	}
	if !g.AllowSubmit("other") {
		t.Fatal("other users have independent buckets")
	}
}

func TestGovernorSubmitRateDisabled(t *testing.T) {
	g := NewGovernor(1, 0)
	for range 100 {
		if !g.AllowSubmit("u") {
			t.Fatal("submissions must pass when throttling is disabled")
		}
	}
}

// ---------------------------------------------------------------------------
// Admission queue ordering and positions
// ---------------------------------------------------------------------------

func TestAdmissionFIFOPositions(t *testing.T) {
	a := NewAdmission()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	j1, j2, j3 := id.NewJobID(), id.NewJobID(), id.NewJobID()
	a.Push(j1, "u1", base)
	a.Push(j2, "u2", base.Add(time.Second))
	a.Push(j3, "u3", base.Add(2*time.Second))

	if p := a.Position(j1); p != 1 {
		t.Fatalf("expected position 1, got %d", p)
	}
	if p := a.Position(j2); p != 2 {
		t.Fatalf("expected position 2, got %d", p)
	}
	if p := a.Position(j3); p != 3 {
		t.Fatalf("expected position 3, got %d", p)
	}
}

func TestAdmissionTieBreakByID(t *testing.T) {
	a := NewAdmission()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same timestamp; K-sortable ids mean first-generated sorts first.
	first, second := id.NewJobID(), id.NewJobID()
	a.Push(second, "u", at)
	a.Push(first, "u", at)

	if p := a.Position(first); p != 1 {
		t.Fatalf("expected id tie-break to rank first-generated job 1, got %d", p)
	}
	if p := a.Position(second); p != 2 {
		t.Fatalf("expected second-generated job at 2, got %d", p)
	}
}

func TestAdmissionPositionDecrementsOnRemoval(t *testing.T) {
	a := NewAdmission()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	j1, j2 := id.NewJobID(), id.NewJobID()
	a.Push(j1, "u1", base)
	a.Push(j2, "u2", base.Add(time.Second))

	if !a.Remove(j1) {
		t.Fatal("expected removal of waiting job")
	}
	if p := a.Position(j2); p != 1 {
		t.Fatalf("expected position to decrement to 1, got %d", p)
	}
	if a.Remove(j1) {
		t.Fatal("second removal must report false")
	}
}

func TestAdmissionPositionAbsent(t *testing.T) {
	a := NewAdmission()
	if p := a.Position(id.NewJobID()); p != 0 {
		t.Fatalf("expected 0 for absent job, got %d", p)
	}
}

// ---------------------------------------------------------------------------
// Admission scan with governor predicate
// ---------------------------------------------------------------------------

func TestNextSkipsCappedOwners(t *testing.T) {
	g := NewGovernor(10, 1)
	a := NewAdmission()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// alice already holds her single slot.
	if !g.TryAcquire("alice") {
		t.Fatal("setup acquire failed")
	}

	aliceJob, bobJob := id.NewJobID(), id.NewJobID()
	a.Push(aliceJob, "alice", base)
	a.Push(bobJob, "bob", base.Add(time.Second))

	got, owner, ok := a.Next(g.TryAcquire)
	if !ok || got != bobJob {
		t.Fatalf("expected bob's job admitted over capped alice, got %v ok=%v", got, ok)
	}
	if owner != "bob" {
		t.Fatalf("expected owner bob, got %q", owner)
	}

	// alice's job is still ranked and still first.
	if p := a.Position(aliceJob); p != 1 {
		t.Fatalf("capped owner's job must stay ranked, got position %d", p)
	}
}

func TestNextEmptyOrUnresolvable(t *testing.T) {
	g := NewGovernor(1, 1)
	a := NewAdmission()

	if _, _, ok := a.Next(g.TryAcquire); ok {
		t.Fatal("empty queue must admit nothing")
	}

	g.TryAcquire("alice")
	a.Push(id.NewJobID(), "alice", time.Now())
	if _, _, ok := a.Next(g.TryAcquire); ok {
		t.Fatal("unresolvable scan must leave the slot idle")
	}
	if a.Len() != 1 {
		t.Fatal("unadmitted job must stay queued")
	}
}
