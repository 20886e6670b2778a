package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timekeep/pkg/platform/circuit"
	"timekeep/pkg/platform/sentinel"
)

var errBoom = errors.New("boom")

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0,
	}
}

func TestExecute_Success(t *testing.T) {
	p := New("registry", WithPolicies(Retry(fastRetry(3)), Timeout(time.Second)))

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry(t *testing.T) {
	t.Run("transient failures recover", func(t *testing.T) {
		p := New("shift", WithPolicies(Retry(fastRetry(3))))

		var calls int32
		err := p.Execute(context.Background(), func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errBoom
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls)
	})

	t.Run("exhaustion returns a dependency error", func(t *testing.T) {
		p := New("shift", WithPolicies(Retry(fastRetry(3))))

		calls := 0
		err := p.Execute(context.Background(), func(context.Context) error {
			calls++
			return errBoom
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		de, ok := AsDependencyError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonRetriesExhausted, de.Reason)
		assert.Equal(t, "shift", de.Dependency)
		assert.Equal(t, 3, de.Attempts)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("passthrough errors are not retried", func(t *testing.T) {
		p := New("registry",
			WithPolicies(Retry(fastRetry(5))),
			WithPassthrough(sentinel.ErrNotFound),
		)

		calls := 0
		err := p.Execute(context.Background(), func(context.Context) error {
			calls++
			return sentinel.ErrNotFound
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, isDep := AsDependencyError(err)
		assert.False(t, isDep)
	})

	t.Run("non retryable errors stop immediately", func(t *testing.T) {
		cfg := fastRetry(5)
		cfg.Retryable = func(err error) bool { return !errors.Is(err, errBoom) }
		p := New("cache", WithPolicies(Retry(cfg)))

		calls := 0
		err := p.Execute(context.Background(), func(context.Context) error {
			calls++
			return errBoom
		})

		assert.Equal(t, 1, calls)
		de, ok := AsDependencyError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonFailed, de.Reason)
	})
}

func TestTimeout(t *testing.T) {
	t.Run("caps a call that ignores its context", func(t *testing.T) {
		p := New("audit", WithPolicies(Timeout(20*time.Millisecond)))

		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		err := p.Execute(context.Background(), func(context.Context) error {
			<-release
			return nil
		})

		assert.Less(t, time.Since(start), 500*time.Millisecond)
		de, ok := AsDependencyError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonTimeout, de.Reason)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("caller cancellation is returned unchanged", func(t *testing.T) {
		p := New("audit", WithPolicies(Timeout(time.Second)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := p.Execute(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		assert.ErrorIs(t, err, context.Canceled)
		_, isDep := AsDependencyError(err)
		assert.False(t, isDep)
	})

	t.Run("every retry attempt is capped", func(t *testing.T) {
		p := New("notify", WithPolicies(Retry(fastRetry(2)), Timeout(10*time.Millisecond)))

		var calls int32
		err := p.Execute(context.Background(), func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			<-ctx.Done()
			return ctx.Err()
		})

		require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)
		de, ok := AsDependencyError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonRetriesExhausted, de.Reason)
	})
}

func TestBreaker(t *testing.T) {
	t.Run("open circuit fails fast without calling the dependency", func(t *testing.T) {
		b := circuit.New("registry",
			circuit.WithMinThroughput(2),
			circuit.WithFailureRatio(0.5),
			circuit.WithBreakDuration(time.Hour),
		)
		p := New("registry", WithPolicies(Breaker(b)))

		calls := 0
		fail := func(context.Context) error {
			calls++
			return errBoom
		}
		_ = p.Execute(context.Background(), fail)
		_ = p.Execute(context.Background(), fail)
		require.Equal(t, circuit.StateOpen, b.State())

		err := p.Execute(context.Background(), fail)

		assert.Equal(t, 2, calls)
		de, ok := AsDependencyError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonCircuitOpen, de.Reason)
		assert.ErrorIs(t, err, circuit.ErrOpen)
	})

	t.Run("passthrough errors do not trip the breaker", func(t *testing.T) {
		b := circuit.New("registry", circuit.WithMinThroughput(1))
		p := New("registry", WithPolicies(Breaker(b)), WithPassthrough(sentinel.ErrNotFound))

		for range 5 {
			_ = p.Execute(context.Background(), func(context.Context) error { return sentinel.ErrNotFound })
		}

		assert.Equal(t, circuit.StateClosed, b.State())
	})

	t.Run("caller cancellation is neutral", func(t *testing.T) {
		now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		b := circuit.New("registry",
			circuit.WithMinThroughput(1),
			circuit.WithBreakDuration(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		)
		p := New("registry", WithPolicies(Breaker(b)))

		_ = p.Execute(context.Background(), func(context.Context) error { return errBoom })
		require.Equal(t, circuit.StateOpen, b.State())
		now = now.Add(time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		err := p.Execute(ctx, func(context.Context) error {
			cancel()
			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, circuit.StateHalfOpen, b.State(), "an abandoned probe does not close the circuit")

		calls := 0
		_ = p.Execute(context.Background(), func(context.Context) error {
			calls++
			return errBoom
		})
		assert.Equal(t, 1, calls, "the probe slot was released")
		assert.Equal(t, circuit.StateOpen, b.State())
	})

	t.Run("retry stops once the circuit opens", func(t *testing.T) {
		b := circuit.New("shift",
			circuit.WithMinThroughput(1),
			circuit.WithBreakDuration(time.Hour),
		)
		p := New("shift", WithPolicies(Retry(fastRetry(5)), Breaker(b)))

		calls := 0
		err := p.Execute(context.Background(), func(context.Context) error {
			calls++
			return errBoom
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestDo(t *testing.T) {
	p := New("cache", WithPolicies(Retry(fastRetry(2))))

	v, err := Do(context.Background(), p, func(context.Context) (string, error) {
		return "shift-a", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "shift-a", v)

	v, err = Do(context.Background(), p, func(context.Context) (string, error) {
		return "partial", errBoom
	})
	require.Error(t, err)
	assert.Empty(t, v)
}

func TestStacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	stacks := NewStacks(map[string]StackConfig{
		DependencyRegistry: {
			Timeout: time.Second,
			Retry:   fastRetry(1),
			Breaker: BreakerConfig{MinThroughput: 1, BreakDuration: time.Hour},
		},
	}, nil, metrics)

	p := stacks.Get(DependencyRegistry)
	assert.Same(t, p, stacks.Get(DependencyRegistry))
	assert.NotSame(t, p, stacks.Get(DependencyShift))

	err := p.Execute(context.Background(), func(context.Context) error { return errBoom })
	require.Error(t, err)
	err = p.Execute(context.Background(), func(context.Context) error { return nil })
	de, ok := AsDependencyError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCircuitOpen, de.Reason)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerOpen.WithLabelValues(DependencyRegistry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Outcomes.WithLabelValues(DependencyRegistry, string(ReasonCircuitOpen))))
}
