// Package conveyor is a client and worker library for the Conveyor job
// server. Producers push units of work to the server; consumers fetch
// them, execute registered handlers, and report the outcome back.
//
// Conveyor is designed as a library, not a service. Import it, register
// handlers as ordinary Go functions, and run a Manager.
//
// # Quick Start
//
//	mgr, err := conveyor.New(
//	    conveyor.WithConcurrency(20),
//	    conveyor.WithQueues("critical", "default"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr.Register("send_email", func(ctx context.Context, args ...any) error {
//	    return mailer.Send(args[0].(string))
//	})
//	if err := mgr.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// The server address comes from the CONVEYOR_URL environment variable,
// falling back to localhost:7519.
//
// # Architecture
//
// The wire package speaks the server's line protocol, client maintains a
// pooled connection set with strict request ordering, and worker runs the
// fetch/execute/report loop with heartbeats and graceful shutdown. Handler
// execution flows through a middleware chain (see the middleware package)
// and lifecycle events fan out to extensions (see ext and observability).
//
// All generated identifiers use TypeID: type-prefixed, K-sortable,
// UUIDv7-based strings such as job_01h455vb4pex5vsknk084sn02q.
package conveyor
