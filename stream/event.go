// Package stream provides the per-job log broadcast channel: an ordered,
// append-only backlog of log lines with live fan-out to any number of
// concurrent subscribers. A subscriber attaching mid-execution receives
// the full backlog observed at attach time plus all subsequently emitted
// lines, in exact emission order. Producers never block on a slow or
// disconnected subscriber — it is dropped and must reconnect to replay.
package stream

import (
	"time"

	"github.com/conducthq/conduct/job"
)

// EventType identifies the kind of stream event.
type EventType string

const (
	// EventLine carries one log line.
	EventLine EventType = "line"
	// EventQueued is the waiting marker sent to a subscriber attaching
	// to a job that has not started; the subscriber is expected to
	// reconnect once the job is running.
	EventQueued EventType = "queued"
	// EventDone is the completion marker emitted when the job reaches a
	// terminal state. It is always the final event on a channel.
	EventDone EventType = "done"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	// Type identifies the event.
	Type EventType `json:"type"`

	// Seq is the strictly increasing per-job sequence number.
	// Set only for line events.
	Seq int `json:"seq,omitempty"`

	// Line is the log line text. Set only for line events.
	Line string `json:"line,omitempty"`

	// State is the terminal state. Set only on the done marker.
	State job.State `json:"state,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`
}
