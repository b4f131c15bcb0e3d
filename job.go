package conveyor

import "github.com/xraph/conveyor/job"

// Job is the unit of work exchanged with the server.
type Job = job.Job

// NewJob creates a Job of the given type with a fresh jid and default
// queue, retry policy, and creation timestamp.
func NewJob(jobtype string, args ...any) *Job {
	return job.New(jobtype, args...)
}

// Register binds a typed job definition to the manager's handler
// registry. The handler receives the job's first positional arg
// unmarshalled into T, so struct payloads skip the manual type
// assertions of Manager.Register:
//
//	conveyor.Register(mgr, job.NewDefinition("send_email",
//	    func(ctx context.Context, input EmailInput) error {
//	        return mailer.Send(input.To, input.Subject)
//	    },
//	))
func Register[T any](m *Manager, def *job.Definition[T]) {
	job.RegisterDefinition(m.registry, def)
}
