// Package ext defines the extension system for Conveyor.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.Jid, elapsed)
//	    return nil
//	}
//
// # Connection Hooks
//
//   - [ConnectionOpened] — socket to the job server established
//   - [GreetingReceived] — server banner parsed during the handshake
//   - [ConnectionIdle] — no traffic for the idle window
//   - [ConnectionError] — transport failure on the socket
//   - [ConnectionClosed] — socket shut down
//
// # Worker Hooks
//
//   - [JobStarted] — a slot began executing a fetched job
//   - [JobCompleted] — execution finished cleanly, before the ack
//   - [JobFailed] — execution returned an error, before the FAIL report
//   - [WorkerError] — a slot loop hit an infrastructure error
//   - [WorkerStateChanged] — the worker moved between run states
//   - [Shutdown] — the worker is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never propagated.
package ext
