package job

import (
	"context"
	"time"

	"github.com/conducthq/conduct/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// Owner filters by owning user id. Empty means all owners.
	Owner string
	// State filters by job state. Empty means all states.
	State State
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Owner filters by owning user id. Empty means all owners.
	Owner string
	// Command filters by command name. Empty means all commands.
	Command string
	// State filters by job state. Empty means all states.
	State State
	// Since restricts the count to jobs queued at or after this instant.
	// Zero means no lower bound.
	Since time.Time
}

// Store defines the persistence contract for jobs. The store is the
// single cross-process source of truth; everything else is cache.
type Store interface {
	// CreateJob persists a new job in queued state.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// AppendJobLog appends one line to the job's log text. Lines are
	// separated by "\n"; append order is the persistence order.
	AppendJobLog(ctx context.Context, jobID id.JobID, line string) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobs returns jobs matching the given options, ordered by
	// QueuedAt descending (newest first), ties broken by id descending.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
