package job

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/conducthq/conduct/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting for an admission slot.
	StateQueued State = "queued"
	// StateRunning means a runner is currently executing the job.
	StateRunning State = "running"
	// StateDone means the job finished successfully.
	StateDone State = "done"
	// StateFailed means the handler returned or raised an error.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before or during execution.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from s
// to next. Exactly one terminal transition ever occurs per job.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateQueued:
		return next == StateRunning || next == StateCancelled
	case StateRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Class partitions jobs by resource weight.
type Class string

const (
	// ClassHeavy jobs are subject to global and per-user concurrency
	// limits and wait in the admission queue.
	ClassHeavy Class = "heavy"
	// ClassLight jobs bypass the governor and run immediately.
	ClassLight Class = "light"
)

// Job is the authoritative record of one research computation.
//
// A Job row is created by submit, mutated exclusively by the single runner
// that owns it while executing, and may be deleted once terminal. LogText
// is append-only and monotonically grows until the job reaches a terminal
// state.
type Job struct {
	ID      id.JobID        `json:"id"`
	OwnerID string          `json:"owner_id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
	Class   Class           `json:"class"`
	State   State           `json:"state"`

	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// LogText is the accumulated log output, lines joined by "\n".
	LogText string `json:"log_text,omitempty"`

	// Output references produced by a successful handler.
	ArtefactIDs []string    `json:"artefact_ids,omitempty"`
	PacketID    id.PacketID `json:"packet_id,omitempty"`

	// QueuePosition is the 1-based rank among all queued heavy jobs.
	// It is defined only while State == StateQueued and is never persisted.
	QueuePosition int `json:"queue_position,omitempty"`
}

// Clone returns a deep copy of the job. Callers that hand jobs across
// component boundaries clone first so no two components share a mutable
// record.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Params != nil {
		cp.Params = append(json.RawMessage(nil), j.Params...)
	}
	if j.ArtefactIDs != nil {
		cp.ArtefactIDs = append([]string(nil), j.ArtefactIDs...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// AppendLog appends one line to the accumulated log text.
func (j *Job) AppendLog(line string) {
	if j.LogText == "" {
		j.LogText = line
		return
	}
	j.LogText += "\n" + line
}

// LogLines splits the accumulated log text back into individual lines.
// Returns nil for an empty log.
func (j *Job) LogLines() []string {
	if j.LogText == "" {
		return nil
	}
	return strings.Split(j.LogText, "\n")
}

// New creates a queued job record for the given owner and command.
func New(owner, command string, params json.RawMessage, class Class) *Job {
	return &Job{
		ID:       id.NewJobID(),
		OwnerID:  owner,
		Command:  command,
		Params:   params,
		Class:    class,
		State:    StateQueued,
		QueuedAt: time.Now().UTC(),
	}
}
