// Package job defines the job payload, handler signature, and handler
// registry.
//
// # Job Payload
//
// A [Job] is the unit of work exchanged with the job server. Its JSON field
// names are fixed by the wire protocol (jid, jobtype, args, queue, ...), so
// a payload produced here round-trips through PUSH and FETCH unchanged.
// Use [New] to build one for enqueueing:
//
//	j := job.New("send_email", "user@example.com", "welcome")
//	j.Queue = "critical"
//
// New fills the defaults the server expects: a generated jid, queue
// "default", retry budget 25, and a created_at stamp.
//
// # Handlers
//
// A [Perform] processes one fetched job. It receives the job's positional
// args as decoded JSON values:
//
//	func sendEmail(ctx context.Context, args ...any) error {
//	    to := args[0].(string)
//	    return mailer.Send(to)
//	}
//
// # Registry
//
// [Registry] maps jobtype strings to [Perform] handlers and is consulted on
// every fetched job. For struct payloads, [RegisterDefinition] wraps a typed
// handler so the first arg is unmarshalled into T before the handler runs:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, input EmailInput) error {
//	        return mailer.Send(input.To, input.Subject, input.Body)
//	    },
//	)
//	job.RegisterDefinition(registry, SendEmail)
package job
