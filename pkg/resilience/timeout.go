package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context cancelled after timeout and returns
// without waiting once the deadline passes. A non-positive timeout runs fn
// directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		if err != nil && timeoutCtx.Err() != nil {
			return expired(ctx, name, timeout)
		}
		return err
	case <-timeoutCtx.Done():
		return expired(ctx, name, timeout)
	}
}

func expired(parent context.Context, name string, timeout time.Duration) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, parent.Err())
	}
	return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
}
