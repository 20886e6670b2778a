package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"timekeep/pkg/platform/circuit"
)

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`     // total attempts including the first
	InitialInterval time.Duration `yaml:"initial_interval"` // first backoff
	MaxInterval     time.Duration `yaml:"max_interval"`     // backoff cap
	Multiplier      float64       `yaml:"multiplier"`
	Jitter          float64       `yaml:"jitter"` // randomization factor in [0,1]
	// Retryable decides whether an error is transient. Nil retries everything
	// except open circuits.
	Retryable func(error) bool `yaml:"-"`
}

// DefaultRetryConfig suits interactive lookups.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

func (c RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	if c.Jitter >= 0 && c.Jitter <= 1 {
		b.RandomizationFactor = c.Jitter
	}
	// Attempts bound the loop, not elapsed time.
	b.MaxElapsedTime = 0
	return b
}

func (c RetryConfig) retryable(err error) bool {
	if errors.Is(err, circuit.ErrOpen) {
		return false
	}
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return true
}

// Retry re-runs failed calls with exponential backoff and jitter.
func Retry(cfg RetryConfig) Policy {
	return PolicyFunc(func(next Func) Func {
		if cfg.MaxAttempts <= 1 {
			return next
		}
		return func(ctx context.Context) error {
			attempts := 0
			bo := backoff.WithContext(
				backoff.WithMaxRetries(cfg.newBackOff(), uint64(cfg.MaxAttempts-1)),
				ctx,
			)

			err := backoff.Retry(func() error {
				attempts++
				err := next(ctx)
				if err == nil {
					return nil
				}
				if isPassthrough(err) || !cfg.retryable(err) {
					return backoff.Permanent(err)
				}
				return err
			}, bo)

			if err == nil || isPassthrough(err) || attempts <= 1 {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			return &exhausted{attempts: attempts, err: err}
		}
	})
}
