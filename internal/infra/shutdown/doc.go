// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT, SIGTERM, context cancellation or an
// explicit Trigger, then runs the registered hooks in reverse order of
// registration under a shared timeout:
//
//	h := shutdown.NewHandler(15*time.Second, shutdown.WithLogger(logger))
//	h.OnShutdown("http server", srv.Shutdown)
//	h.OnShutdown("user store", func(context.Context) error { return store.Close() })
//	err := h.Wait(ctx)
package shutdown
