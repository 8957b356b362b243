package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension   = (*Broker)(nil)
	_ ext.JobStarted  = (*Broker)(nil)
	_ ext.JobLogged   = (*Broker)(nil)
	_ ext.JobFinished = (*Broker)(nil)
	_ ext.Shutdown    = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber live event buffer.
const DefaultBufferSize = 256

// Broker owns one broadcast Channel per job. It implements the ext hook
// interfaces so the runner's lifecycle events drive channel creation,
// line fan-out, and terminal close without the runner knowing about
// subscribers at all.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	logger     *slog.Logger
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber live event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		channels:   make(map[string]*Channel),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Attach subscribes to a job's channel. Returns false if no channel
// exists — the job never started in this process lifetime; the caller
// decides whether to synthesize a replay from the persisted log or to
// send a waiting marker.
func (b *Broker) Attach(jobID id.JobID) (*Subscriber, bool) {
	b.mu.RLock()
	ch, ok := b.channels[jobID.String()]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ch.Attach(b.bufferSize), true
}

// Detach drops one subscriber from a job's channel.
func (b *Broker) Detach(jobID id.JobID, subID id.SubscriberID) {
	b.mu.RLock()
	ch, ok := b.channels[jobID.String()]
	b.mu.RUnlock()
	if ok {
		ch.Detach(subID)
	}
}

// Remove forgets a job's channel entirely, e.g. after the job row is
// deleted. Deletion requires a terminal job, so the channel is normally
// closed already; closing again is a no-op.
func (b *Broker) Remove(jobID id.JobID) {
	b.mu.Lock()
	ch, ok := b.channels[jobID.String()]
	delete(b.channels, jobID.String())
	b.mu.Unlock()
	if ok {
		ch.CloseWith(job.StateCancelled)
	}
}

// Channel returns the channel for a job, if one exists.
func (b *Broker) Channel(jobID id.JobID) (*Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[jobID.String()]
	return ch, ok
}

// ── Lifecycle hooks ─────────────────────────────────

// OnJobStarted opens the job's broadcast channel.
func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.channels[j.ID.String()]; !exists {
		b.channels[j.ID.String()] = newChannel(j.ID)
	}
	return nil
}

// OnJobLogged publishes one line to the job's channel.
func (b *Broker) OnJobLogged(_ context.Context, j *job.Job, _ int, line string) error {
	b.mu.RLock()
	ch, ok := b.channels[j.ID.String()]
	b.mu.RUnlock()
	if ok {
		ch.Publish(line)
	}
	return nil
}

// OnJobFinished closes the job's channel with the completion marker.
// The channel (and its backlog) is retained for late subscribers until
// the job is deleted.
func (b *Broker) OnJobFinished(_ context.Context, j *job.Job, _ time.Duration) error {
	b.mu.RLock()
	ch, ok := b.channels[j.ID.String()]
	b.mu.RUnlock()
	if ok {
		ch.CloseWith(j.State)
	}
	return nil
}

// OnShutdown closes every channel.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	channels := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.channels = make(map[string]*Channel)
	b.mu.Unlock()

	for _, ch := range channels {
		ch.CloseWith(job.StateCancelled)
	}
	b.logger.Info("stream broker shut down")
	return nil
}
