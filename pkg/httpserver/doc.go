// Package httpserver wraps net/http with graceful shutdown, functional
// options, slog logging and health probes.
//
// Run blocks until the context is cancelled, SIGINT/SIGTERM arrives or
// Shutdown is called. Request contexts derive from a base context that is
// cancelled first during shutdown, which ends long-lived server-sent event
// streams so the server can drain within ShutdownTimeout. WriteTimeout is off
// by default for the same reason.
//
//	r := chi.NewRouter()
//	r.Get("/health/live", httpserver.LivenessHandler())
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)},
//	))
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
