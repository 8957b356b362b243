package stream

import (
	"sync/atomic"

	"github.com/conducthq/conduct/id"
)

// Subscriber is one live consumer attached to a job's broadcast channel.
// It is purely transient and never persisted. Events are delivered on a
// buffered channel; a subscriber whose buffer is full is dropped by the
// producer rather than ever blocking it.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id id.SubscriberID

	// ch is the buffered channel events are sent on.
	ch chan Event

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

func newSubscriber(bufferSize int) *Subscriber {
	return &Subscriber{
		id: id.NewSubscriberID(),
		ch: make(chan Event, bufferSize),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() id.SubscriberID { return s.id }

// C returns the read-only event channel. It is closed after the done
// marker, or when the subscriber is dropped or detached.
func (s *Subscriber) C() <-chan Event { return s.ch }

// send attempts a non-blocking delivery.
// Returns false if the subscriber is closed or its buffer is full.
func (s *Subscriber) send(evt Event) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
