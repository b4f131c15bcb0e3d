package httphook

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// becomes the Type field of the delivered [Event].
const (
	EventJobStarted         = "conveyor.job.started"
	EventJobCompleted       = "conveyor.job.completed"
	EventJobFailed          = "conveyor.job.failed"
	EventWorkerError        = "conveyor.worker.error"
	EventWorkerStateChanged = "conveyor.worker.state_changed"
	EventShutdown           = "conveyor.worker.shutdown"
)

// AllEvents returns every event type this extension can emit.
func AllEvents() []string {
	return []string{
		EventJobStarted,
		EventJobCompleted,
		EventJobFailed,
		EventWorkerError,
		EventWorkerStateChanged,
		EventShutdown,
	}
}
