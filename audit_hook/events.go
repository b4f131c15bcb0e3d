package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobStarted         = "job.started"
	ActionJobCompleted       = "job.completed"
	ActionJobFailed          = "job.failed"
	ActionWorkerError        = "worker.error"
	ActionWorkerStateChanged = "worker.state_changed"
	ActionConnectionOpened   = "connection.opened"
	ActionConnectionClosed   = "connection.closed"
	ActionShutdown           = "worker.shutdown"
)

// Audit event categories group related actions.
const (
	CategoryJob        = "conveyor.job"
	CategoryWorker     = "conveyor.worker"
	CategoryConnection = "conveyor.connection"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob        = "job"
	ResourceWorker     = "worker"
	ResourceConnection = "connection"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionWorkerError,
		ActionWorkerStateChanged,
		ActionConnectionOpened,
		ActionConnectionClosed,
		ActionShutdown,
	}
}
