// Package httphook bridges worker lifecycle events to an HTTP endpoint
// for webhook delivery. When registered as an extension, it POSTs one
// JSON event (conveyor.job.completed, conveyor.worker.state_changed,
// and so on) per lifecycle point.
//
// Usage:
//
//	hook := httphook.New("https://ops.example.com/hooks/conveyor",
//	    httphook.WithHeader("Authorization", "Bearer "+token),
//	)
//	mgr, err := conveyor.New(conveyor.WithExtensions(hook))
//
// To restrict which events are emitted:
//
//	hook := httphook.New(endpoint,
//	    httphook.WithEvents(
//	        httphook.EventJobFailed,
//	        httphook.EventWorkerError,
//	    ),
//	)
//
// Delivery failures are returned to the extension registry, which logs
// them; they never interrupt job processing.
package httphook
