package audithook

// Audit event actions, one per lifecycle hook.
const (
	ActionJobEnqueued      = "job.enqueued"
	ActionJobStarted       = "job.started"
	ActionJobCompleted     = "job.completed"
	ActionJobRetrying      = "job.retrying"
	ActionJobDead          = "job.dead"
	ActionLeasesRecovered  = "queue.leases_recovered"
	ActionStoreUnavailable = "queue.store_unavailable"
)

// Categories group related actions.
const (
	CategoryJob   = "intake.job"
	CategoryQueue = "intake.queue"
)

// Resource types.
const (
	ResourceJob   = "job"
	ResourceQueue = "queue"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobDead,
		ActionLeasesRecovered,
		ActionStoreUnavailable,
	}
}
