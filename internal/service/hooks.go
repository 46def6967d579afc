package service

import (
	"context"
	"time"

	"github.com/servicepoint/garage-bookings/pkg/logger"
)

// Hook is a side effect queued during an operation and run only after
// the database write has succeeded. Hook failures are logged, never
// surfaced to the caller.
type Hook func(ctx context.Context) error

// runHooks executes hooks on a detached context so they outlive the
// request but cannot hang forever.
func runHooks(hooks []Hook) {
	if len(hooks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, h := range hooks {
		if err := h(ctx); err != nil {
			logger.ErrorContext(ctx, "post-commit hook failed", "error", err)
		}
	}
}
