// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
	"github.com/conducthq/conduct/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in queued state.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return conduct.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, conduct.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return conduct.ErrJobNotFound
	}
	m.jobs[key] = j.Clone()
	return nil
}

// AppendJobLog appends one line to the job's log text.
func (m *Store) AppendJobLog(_ context.Context, jobID id.JobID, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return conduct.ErrJobNotFound
	}
	j.AppendLog(line)
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return conduct.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobs returns jobs matching the given options, newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Owner != "" && j.OwnerID != opts.Owner {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		result = append(result, j.Clone())
	}
	m.mu.RUnlock()

	// QueuedAt descending, ties broken by id descending.
	sort.Slice(result, func(i, k int) bool {
		if !result[i].QueuedAt.Equal(result[k].QueuedAt) {
			return result[i].QueuedAt.After(result[k].QueuedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Owner != "" && j.OwnerID != opts.Owner {
			continue
		}
		if opts.Command != "" && j.Command != opts.Command {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if !opts.Since.IsZero() && j.QueuedAt.Before(opts.Since) {
			continue
		}
		n++
	}
	return n, nil
}
