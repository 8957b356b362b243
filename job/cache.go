package job

import (
	"sort"
	"sync"

	"github.com/conducthq/conduct/id"
)

// Cache is the in-process mirror of the job store: fast status reads and
// the attachment point for log fan-out. The store remains the source of
// truth — writers update the store first and the cache second, so the
// cache never exposes a status before the corresponding store write has
// committed.
//
// Cache is constructed once at startup (after the recovery sweep) and
// passed by reference to every component that needs it.
type Cache struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		jobs: make(map[string]*Job),
	}
}

// Load seeds the cache from store rows, replacing any existing entries.
func (c *Cache) Load(jobs []*Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		c.jobs[j.ID.String()] = j.Clone()
	}
}

// Put stores a snapshot of the job, overwriting any previous snapshot.
func (c *Cache) Put(j *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[j.ID.String()] = j.Clone()
}

// Get returns a copy of the cached job, or false if absent.
func (c *Cache) Get(jobID id.JobID) (*Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[jobID.String()]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// Delete removes a job from the cache.
func (c *Cache) Delete(jobID id.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, jobID.String())
}

// ListForOwner returns copies of the owner's jobs, newest first.
func (c *Cache) ListForOwner(owner string) []*Job {
	c.mu.RLock()
	out := make([]*Job, 0, 8)
	for _, j := range c.jobs {
		if j.OwnerID == owner {
			out = append(out, j.Clone())
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if !out[a].QueuedAt.Equal(out[b].QueuedAt) {
			return out[a].QueuedAt.After(out[b].QueuedAt)
		}
		return out[a].ID.String() > out[b].ID.String()
	})
	return out
}

// Len returns the number of cached jobs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}
