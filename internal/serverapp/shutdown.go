package serverapp

import (
	"context"
	"log/slog"

	"autoapi/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run calls every cleanup, newest first, and keeps going past failures.
// It returns the number of failed steps.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) int {
	failed := 0
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		logger.Debug("releasing " + item.name)
		if err := item.fn(ctx); err != nil {
			failed++
			logger.Warn("cleanup error",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.items = nil
	return failed
}

// Shutdown stops the HTTP server and releases all acquired resources. It is
// safe to call multiple times; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.started = false
		a.stateMu.Unlock()

		if failed := cleanup.run(ctx, a.logger); failed > 0 {
			a.logger.Warn("shutdown completed with errors", slog.Int("failed_steps", failed))
		}
	})
	return nil
}
