// Package resilience composes timeout, retry and circuit-breaker policies
// around calls to shared dependencies (registry, shift service, cache, audit
// store, notification broker).
//
// Policies are listed outermost first:
//
//	p := resilience.New("registry", resilience.WithPolicies(
//		resilience.Retry(cfg.Retry),
//		resilience.Breaker(circuit.New("registry")),
//		resilience.Timeout(2*time.Second),
//	))
//	employee, err := resilience.Do(ctx, p, func(ctx context.Context) (id.EmployeeID, error) { ... })
//
// A pipeline never reports success for a failed call: any error that leaves it
// is either a passthrough error (see WithPassthrough) or a *DependencyError.
package resilience

import (
	"context"
	"errors"
	"log/slog"

	"timekeep/pkg/platform/circuit"
)

// Func is a unit of work guarded by a pipeline.
type Func func(ctx context.Context) error

// Policy decorates a Func.
type Policy interface {
	Wrap(next Func) Func
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(next Func) Func

func (f PolicyFunc) Wrap(next Func) Func { return f(next) }

// Pipeline is an immutable, reusable stack of policies for one dependency.
type Pipeline struct {
	name        string
	policies    []Policy
	passthrough []error
	logger      *slog.Logger
	metrics     *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicies appends policies, outermost first.
func WithPolicies(policies ...Policy) Option {
	return func(p *Pipeline) {
		p.policies = append(p.policies, policies...)
	}
}

// WithPassthrough lists errors that are business outcomes, not dependency
// failures. They are returned unchanged, never retried and never trip a breaker.
func WithPassthrough(errs ...error) Option {
	return func(p *Pipeline) {
		p.passthrough = append(p.passthrough, errs...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New builds a pipeline for the named dependency.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{name: name}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Name() string { return p.name }

// Execute runs fn through every policy.
func (p *Pipeline) Execute(ctx context.Context, fn Func) error {
	if p == nil {
		return fn(ctx)
	}

	attempts := 0
	inner := func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err != nil && p.isPassthrough(err) {
			return &passthrough{err: err}
		}
		return err
	}

	call := Func(inner)
	for i := len(p.policies) - 1; i >= 0; i-- {
		call = p.policies[i].Wrap(call)
	}

	err := call(ctx)
	if err == nil {
		p.metrics.observe(p.name, "success")
		return nil
	}

	var pt *passthrough
	if errors.As(err, &pt) {
		p.metrics.observe(p.name, "passthrough")
		return pt.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		// Caller cancelled; not the dependency's fault.
		p.metrics.observe(p.name, "cancelled")
		return err
	}

	depErr := p.classify(err, attempts)
	p.metrics.observe(p.name, string(depErr.Reason))
	if p.logger != nil {
		p.logger.WarnContext(ctx, "dependency call failed",
			"dependency", p.name,
			"reason", depErr.Reason,
			"attempts", depErr.Attempts,
			"error", depErr.Err,
		)
	}
	return depErr
}

// Do runs a value-returning function through the pipeline.
func Do[T any](ctx context.Context, p *Pipeline, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (p *Pipeline) isPassthrough(err error) bool {
	for _, target := range p.passthrough {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p *Pipeline) classify(err error, attempts int) *DependencyError {
	de := &DependencyError{Dependency: p.name, Attempts: attempts, Reason: ReasonFailed, Err: err}

	var ex *exhausted
	if errors.As(err, &ex) {
		de.Reason = ReasonRetriesExhausted
		de.Err = ex.err
		err = ex.err
	}
	var te *TimeoutError
	switch {
	case errors.Is(err, circuit.ErrOpen):
		de.Reason = ReasonCircuitOpen
	case errors.As(err, &te) && de.Reason != ReasonRetriesExhausted:
		de.Reason = ReasonTimeout
	}
	return de
}
