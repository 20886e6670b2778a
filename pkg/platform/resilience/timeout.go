package resilience

import (
	"context"
	"time"
)

// Timeout caps each call at d. The cap is hard: if the guarded function
// ignores its context the pipeline still returns at the deadline and the
// straggler's result is discarded.
func Timeout(d time.Duration) Policy {
	return PolicyFunc(func(next Func) Func {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- next(callCtx) }()

			select {
			case err := <-done:
				if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
					return &TimeoutError{Limit: d.String()}
				}
				return err
			case <-callCtx.Done():
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &TimeoutError{Limit: d.String()}
			}
		}
	})
}
