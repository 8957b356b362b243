package stream

import (
	"sync"
	"time"

	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

// Channel is the broadcast channel for a single job: the ordered backlog
// of everything emitted so far plus the set of live subscribers.
//
// All sends and closes happen under the channel mutex, which is what
// makes the replay-at-attach ordering exact: an attaching subscriber
// sees either a line in the replayed backlog or live, never both and
// never neither.
type Channel struct {
	mu sync.Mutex

	jobID   id.JobID
	backlog []Event
	subs    map[string]*Subscriber

	closed bool
	final  job.State
}

func newChannel(jobID id.JobID) *Channel {
	return &Channel{
		jobID: jobID,
		subs:  make(map[string]*Subscriber),
	}
}

// JobID returns the job this channel belongs to.
func (c *Channel) JobID() id.JobID { return c.jobID }

// Publish appends one log line to the backlog and fans it out to all
// live subscribers. Subscribers that cannot keep up are dropped. Returns
// the line's sequence number (strictly increasing, starting at 1).
// Publishing to a closed channel is a no-op returning 0.
func (c *Channel) Publish(line string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}

	evt := Event{
		Type:      EventLine,
		Seq:       len(c.backlog) + 1,
		Line:      line,
		Timestamp: time.Now().UTC(),
	}
	c.backlog = append(c.backlog, evt)

	for key, sub := range c.subs {
		if !sub.send(evt) {
			// Slow or gone. Drop it; the client replays on reconnect.
			sub.Close()
			delete(c.subs, key)
		}
	}
	return evt.Seq
}

// CloseWith emits the completion marker to every subscriber, closes
// them, and marks the channel terminal. Idempotent.
func (c *Channel) CloseWith(final job.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.final = final

	done := Event{Type: EventDone, State: final, Timestamp: time.Now().UTC()}
	for key, sub := range c.subs {
		sub.send(done) // best effort; the close below ends the stream either way
		sub.Close()
		delete(c.subs, key)
	}
}

// Attach registers a new subscriber. The subscriber first receives the
// full backlog observed at attach time, then all subsequently published
// lines. If the channel is already terminal the backlog is followed
// immediately by the done marker and the subscriber is closed — no live
// tailing is offered for finished jobs.
//
// bufferSize bounds the live buffer; the replayed backlog is always
// delivered in full regardless of its length.
func (c *Channel) Attach(bufferSize int) *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	capacity := len(c.backlog) + bufferSize
	if c.closed {
		capacity++ // room for the done marker
	}
	sub := newSubscriber(capacity)

	for _, evt := range c.backlog {
		sub.send(evt)
	}

	if c.closed {
		sub.send(Event{Type: EventDone, State: c.final, Timestamp: time.Now().UTC()})
		sub.Close()
		return sub
	}

	c.subs[sub.ID().String()] = sub
	return sub
}

// Detach removes and closes one subscriber, e.g. when its client
// disconnects. Unknown ids are ignored.
func (c *Channel) Detach(subID id.SubscriberID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[subID.String()]; ok {
		sub.Close()
		delete(c.subs, subID.String())
	}
}

// Backlog returns a copy of all line events published so far.
func (c *Channel) Backlog() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.backlog...)
}

// SubscriberCount returns the number of live subscribers.
func (c *Channel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
