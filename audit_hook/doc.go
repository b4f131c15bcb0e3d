// Package audithook is a Conveyor extension that bridges lifecycle events
// to an audit trail backend.
//
// Every job, worker, and connection lifecycle hook emits a structured audit
// event through the [Recorder] interface. The extension assigns severity
// levels (info for normal operations, warning for worker loop errors,
// critical for failed jobs) and metadata such as jobtype, queue, and
// elapsed time.
//
// # Usage
//
//	trail := audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditlog.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//	mgr, err := conveyor.New(conveyor.WithExtensions(trail))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionWorkerError,
//	    ),
//	)
package audithook
