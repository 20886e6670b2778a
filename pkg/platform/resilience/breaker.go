package resilience

import (
	"context"

	"timekeep/pkg/platform/circuit"
)

// Breaker guards calls with b. Open circuits fail immediately without
// invoking the dependency; passthrough errors count as successes. A call
// abandoned by its caller is neither a success nor a failure.
func Breaker(b *circuit.Breaker) Policy {
	return PolicyFunc(func(next Func) Func {
		return func(ctx context.Context) error {
			if err := b.Allow(); err != nil {
				return err
			}
			err := next(ctx)
			if err == nil || isPassthrough(err) {
				b.RecordSuccess()
				return err
			}
			if ctx.Err() != nil {
				b.Release()
				return err
			}
			b.RecordFailure()
			return err
		}
	})
}
