// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT, SIGTERM, context cancellation or an explicit
// Trigger, then runs the registered hooks in reverse order under a timeout.
//
//	h := shutdown.NewHandler(10*time.Second, shutdown.WithLogger(log))
//	h.OnShutdown("endpoints", func(ctx context.Context) error { return mgr.Close() })
//	err := h.Wait(ctx)
//
// NotifyReload runs a callback on every SIGHUP until its context ends.
package shutdown
