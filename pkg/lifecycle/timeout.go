package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// callWithTimeout runs fn and waits at most d for it to return.
// When d elapses the call is abandoned and ErrStepTimeout is returned; fn keeps
// running in the background until it observes ctx.
func callWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, d, ErrStepTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		// fn may notice the deadline before we do.
		if err != nil && errors.Is(context.Cause(ctx), ErrStepTimeout) {
			return fmt.Errorf("%w after %s: %v", ErrStepTimeout, d, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), ErrStepTimeout) {
			return fmt.Errorf("%w after %s", ErrStepTimeout, d)
		}
		return ctx.Err()
	}
}
