package audit

// Audit event actions. Queued and started map one-to-one onto lifecycle
// hooks; the finished hook fans out by terminal state.
const (
	ActionJobQueued    = "job.queued"
	ActionJobStarted   = "job.started"
	ActionJobDone      = "job.done"
	ActionJobFailed    = "job.failed"
	ActionJobCancelled = "job.cancelled"
)

// CategoryJob groups all job actions.
const CategoryJob = "conduct.job"

// ResourceJob is the resource type of every event this extension emits.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobQueued,
		ActionJobStarted,
		ActionJobDone,
		ActionJobFailed,
		ActionJobCancelled,
	}
}
