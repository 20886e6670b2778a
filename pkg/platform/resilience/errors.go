package resilience

import (
	"errors"
	"fmt"

	"timekeep/pkg/platform/sentinel"
)

// Reason names why a dependency call was given up on.
type Reason string

const (
	ReasonCircuitOpen      Reason = "circuit_open"
	ReasonTimeout          Reason = "timeout"
	ReasonRetriesExhausted Reason = "retries_exhausted"
	ReasonFailed           Reason = "failed"
)

// DependencyError is the typed failure every exhausted pipeline returns.
// It matches both sentinel.ErrUnavailable and the last underlying error.
type DependencyError struct {
	Dependency string
	Reason     Reason
	Attempts   int
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dependency %s unavailable (%s after %d attempt(s))", e.Dependency, e.Reason, e.Attempts)
	}
	return fmt.Sprintf("dependency %s unavailable (%s after %d attempt(s)): %v", e.Dependency, e.Reason, e.Attempts, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinel.ErrUnavailable}
	}
	return []error{sentinel.ErrUnavailable, e.Err}
}

// AsDependencyError extracts a *DependencyError from err's chain.
func AsDependencyError(err error) (*DependencyError, bool) {
	var de *DependencyError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// TimeoutError marks a call cut off by the Timeout policy.
type TimeoutError struct {
	Limit string
}

func (e *TimeoutError) Error() string { return "call exceeded timeout of " + e.Limit }

// passthrough carries an error the pipeline was told not to treat as a
// dependency failure (for example "not found"). Policies treat it as success.
type passthrough struct{ err error }

func (p *passthrough) Error() string { return p.err.Error() }
func (p *passthrough) Unwrap() error { return p.err }

func isPassthrough(err error) bool {
	var p *passthrough
	return errors.As(err, &p)
}

// exhausted marks the retry policy giving up after more than one attempt.
type exhausted struct {
	attempts int
	err      error
}

func (e *exhausted) Error() string { return e.err.Error() }
func (e *exhausted) Unwrap() error { return e.err }
