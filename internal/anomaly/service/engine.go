// Package service evaluates audit entries against the anomaly rules, stores
// the resulting signals and drives their operator lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"timekeep/internal/anomaly/models"
	"timekeep/internal/anomaly/rules"
	auditmodels "timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/resilience"
)

var tracer = otel.Tracer("timekeep/anomaly")

// SignalStore persists signals. CreateIfAbsent reports false when a signal
// with the same dedup key already exists.
type SignalStore interface {
	CreateIfAbsent(ctx context.Context, sig *models.Signal) (bool, error)
	Get(ctx context.Context, tenantID id.TenantID, signalID id.SignalID) (*models.Signal, error)
	Update(ctx context.Context, sig *models.Signal) error
	List(ctx context.Context, q models.Query) ([]*models.Signal, error)
}

// Auditor records lifecycle transitions.
type Auditor interface {
	Append(ctx context.Context, rec auditmodels.Record) (*auditmodels.Entry, error)
}

// Engine runs one rule set. It holds no state of its own; counters and
// sessions live in the stores the rules were built with.
type Engine struct {
	name     string
	rules    []rules.Rule
	store    SignalStore
	pipeline *resilience.Pipeline
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStorePipeline guards signal writes.
func WithStorePipeline(p *resilience.Pipeline) Option {
	return func(e *Engine) {
		e.pipeline = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(name string, rs []rules.Rule, store SignalStore, opts ...Option) (*Engine, error) {
	if name == "" {
		return nil, errors.New("rule set name is required")
	}
	if store == nil {
		return nil, errors.New("signal store is required")
	}
	e := &Engine{
		name:   name,
		rules:  rs,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return e.name }

// Evaluate runs every rule against entry and returns the signals it created.
// Rules are independent: one rule failing does not stop the others, and the
// failures come back joined. Findings whose dedup key already has a signal
// are dropped, so evaluating an entry twice yields no new signals.
func (e *Engine) Evaluate(ctx context.Context, entry auditmodels.Entry) ([]*models.Signal, error) {
	ctx, span := tracer.Start(ctx, "anomaly.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ruleset", e.name),
		attribute.String("audit.action", string(entry.Action)),
	)
	if e.metrics != nil {
		e.metrics.Evaluations.WithLabelValues(e.name).Inc()
	}

	var (
		created []*models.Signal
		errs    []error
	)
	for _, rule := range e.rules {
		finding, err := rule.Evaluate(ctx, entry)
		if err != nil {
			if e.metrics != nil {
				e.metrics.RuleErrors.WithLabelValues(string(rule.Type())).Inc()
			}
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.Type(), err))
			continue
		}
		if finding == nil {
			continue
		}
		sig, ok, err := e.Raise(ctx, entry, *finding)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created = append(created, sig)
		}
	}
	return created, errors.Join(errs...)
}

// Raise stores a signal for finding unless one already exists for the same
// entry and type.
func (e *Engine) Raise(ctx context.Context, entry auditmodels.Entry, f models.Finding) (*models.Signal, bool, error) {
	sig := models.NewSignal(entry.TenantID, entry.ID, f, e.now().UTC())
	ok, err := resilience.Do(ctx, e.pipeline, func(ctx context.Context) (bool, error) {
		return e.store.CreateIfAbsent(ctx, sig)
	})
	if err != nil {
		return nil, false, fmt.Errorf("store %s signal: %w", f.Type, err)
	}
	if !ok {
		if e.metrics != nil {
			e.metrics.Suppressed.WithLabelValues(string(f.Type)).Inc()
		}
		return nil, false, nil
	}
	if e.metrics != nil {
		e.metrics.Signals.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
	}
	trace.SpanFromContext(ctx).AddEvent("signal raised", trace.WithAttributes(
		attribute.String("signal.type", string(sig.Type)),
		attribute.String("signal.severity", string(sig.Severity)),
	))
	e.logger.WarnContext(ctx, "anomaly signal raised",
		"tenant_id", sig.TenantID,
		"signal_id", sig.ID,
		"type", sig.Type,
		"severity", sig.Severity,
		"subject", sig.Subject,
		"metric", sig.Metric,
		"threshold", sig.Threshold,
		"actual", sig.Actual,
		"entry_id", sig.EntryID,
	)
	return sig, true, nil
}
