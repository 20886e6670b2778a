// Package resolution turns a normalized device punch into a resolved punch:
// identity lookup, dedup by fingerprint and the quality flag. It never mutates
// attendance state; the gateway hands resolved punches to the state builder.
package resolution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
)

var tracer = otel.Tracer("timekeep/resolution")

// DeviceRegistry maps device-local users to employees.
type DeviceRegistry interface {
	Lookup(ctx context.Context, tenantID id.TenantID, deviceSerial, deviceUserID string) (id.EmployeeID, error)
}

// FingerprintStore is an expiring set of recently seen fingerprints.
type FingerprintStore interface {
	Claim(ctx context.Context, tenantID id.TenantID, fingerprint string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tenantID id.TenantID, fingerprint string) error
}

// PunchReader loads persisted punches for manual resolution.
type PunchReader interface {
	Get(ctx context.Context, tenantID id.TenantID, punchID id.PunchID) (*models.Resolved, error)
}

// Config tunes dedup and the quality flag.
type Config struct {
	Tolerance        time.Duration
	FingerprintTTL   time.Duration
	QualityThreshold int
}

type Engine struct {
	registry         DeviceRegistry
	fingerprints     FingerprintStore
	punches          PunchReader
	registryPipeline *resilience.Pipeline
	cachePipeline    *resilience.Pipeline
	cfg              Config
	logger           *slog.Logger
	metrics          *Metrics
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

// WithRegistryPipeline guards registry lookups.
func WithRegistryPipeline(p *resilience.Pipeline) Option {
	return func(e *Engine) {
		e.registryPipeline = p
	}
}

// WithCachePipeline guards fingerprint store calls.
func WithCachePipeline(p *resilience.Pipeline) Option {
	return func(e *Engine) {
		e.cachePipeline = p
	}
}

func New(registry DeviceRegistry, fingerprints FingerprintStore, punches PunchReader, cfg Config, opts ...Option) (*Engine, error) {
	if registry == nil || fingerprints == nil || punches == nil {
		return nil, errors.New("registry, fingerprint store and punch reader are required")
	}
	if cfg.Tolerance <= 0 {
		return nil, errors.New("dedup tolerance must be positive")
	}
	if cfg.FingerprintTTL < cfg.Tolerance {
		cfg.FingerprintTTL = cfg.Tolerance
	}
	e := &Engine{
		registry:     registry,
		fingerprints: fingerprints,
		punches:      punches,
		cfg:          cfg,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Resolve computes the fingerprint, claims it and resolves identity.
//
// The returned punch is always non-nil and carries its outcome:
//   - Duplicate: the fingerprint was already claimed in the window.
//   - Pending without an employee: the registry does not know the user.
//   - Pending with an employee: ready for the attendance state builder.
//   - Failed: a dependency was unavailable; the error says which. The
//     fingerprint is released so the device's retry is not mistaken for a
//     duplicate.
func (e *Engine) Resolve(ctx context.Context, tenantID id.TenantID, ev models.Event) (*models.Resolved, error) {
	ctx, span := tracer.Start(ctx, "resolution.resolve")
	defer span.End()

	ev.TenantID = tenantID
	res := &models.Resolved{
		Event:       ev,
		Fingerprint: Fingerprint(ev, e.cfg.Tolerance),
		Status:      models.StatusPending,
		Warnings:    []dErrors.Code{},
	}
	if ev.Quality < e.cfg.QualityThreshold {
		res.AddWarning(dErrors.CodeLowVerificationQuality)
		if e.metrics != nil {
			e.metrics.LowQuality.Inc()
		}
	}

	claimed, err := resilience.Do(ctx, e.cachePipeline, func(ctx context.Context) (bool, error) {
		return e.fingerprints.Claim(ctx, tenantID, res.Fingerprint, e.cfg.FingerprintTTL)
	})
	if err != nil {
		res.Status = models.StatusFailed
		e.metrics.outcome("failed")
		return res, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "dedup store unavailable")
	}
	if !claimed {
		res.Status = models.StatusDuplicate
		res.AddWarning(dErrors.CodeDuplicatePunch)
		span.SetAttributes(attribute.Bool("punch.duplicate", true))
		e.metrics.outcome("duplicate")
		return res, nil
	}

	employeeID, err := resilience.Do(ctx, e.registryPipeline, func(ctx context.Context) (id.EmployeeID, error) {
		return e.registry.Lookup(ctx, tenantID, ev.DeviceSerial, ev.DeviceUserID)
	})
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		res.AddWarning(dErrors.CodeUnresolvedIdentity)
		e.metrics.outcome("unresolved")
		e.logger.InfoContext(ctx, "punch from unmapped device user held for manual resolution",
			"tenant_id", tenantID,
			"device_serial", ev.DeviceSerial,
			"punch_id", ev.ID,
		)
		return res, nil
	case err != nil:
		e.Release(ctx, tenantID, res.Fingerprint)
		res.Status = models.StatusFailed
		e.metrics.outcome("failed")
		return res, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "device registry unavailable")
	}

	res.EmployeeID = &employeeID
	e.metrics.outcome("resolved")
	return res, nil
}

// Release frees a claimed fingerprint so a resubmission of a punch that was
// never committed is processed rather than read as a duplicate.
func (e *Engine) Release(ctx context.Context, tenantID id.TenantID, fingerprint string) {
	err := e.cachePipeline.Execute(ctx, func(ctx context.Context) error {
		return e.fingerprints.Release(ctx, tenantID, fingerprint)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to release fingerprint; device retry will read as duplicate until it expires",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

// ResolvePending assigns an employee to a punch held as unresolved. The
// returned punch is ready for the state builder; the caller persists and
// audits the outcome.
func (e *Engine) ResolvePending(ctx context.Context, tenantID id.TenantID, punchID id.PunchID, employeeID id.EmployeeID) (*models.Resolved, error) {
	if employeeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "employee_id is required")
	}
	p, err := e.punches.Get(ctx, tenantID, punchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "punch not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load punch")
	}
	if p.Status != models.StatusPending || p.EmployeeID != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "punch is not awaiting identity resolution")
	}
	p.EmployeeID = &employeeID
	e.metrics.outcome("resolved")
	return p, nil
}
