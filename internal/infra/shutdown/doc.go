// Package shutdown provides graceful shutdown for dzmesh.
//
// This package handles process termination:
//
//   - Signal handling (SIGINT, SIGTERM) or programmatic Trigger
//   - A single timeout shared by all hooks
//   - Named hooks run in reverse registration order
//
// Usage:
//
//	h := shutdown.NewHandler(15*time.Second, logger)
//	h.OnShutdown("store", func(ctx context.Context) error { return db.Close() })
//	err := h.Wait(ctx)
//
// @design DS-0501
package shutdown
