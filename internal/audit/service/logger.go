// Package service implements the tamper-evident audit logger.
//
// Append is synchronous and fail-closed: a write that cannot be persisted is
// returned to the caller as CodeAuditWriteFailed and the caller's operation
// must report failure. Once the write has committed (immediately, or when the
// caller's transaction commits) the entry is offered to the analysis
// subscribers without blocking.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"timekeep/internal/audit/metrics"
	"timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
	"timekeep/pkg/requestcontext"
)

var tracer = otel.Tracer("timekeep/audit")

// Store persists entries. There is deliberately no update or delete.
type Store interface {
	Append(ctx context.Context, entry *models.Entry) error
	Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error)
	MarkUnverified(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) error
	Query(ctx context.Context, q models.Query) ([]*models.Entry, error)
}

// Subscriber receives a copy of every appended entry. Offer must not block;
// false means the entry was not accepted.
type Subscriber interface {
	Name() string
	Offer(ctx context.Context, entry models.Entry) bool
}

// TamperReporter raises the security signal for a checksum mismatch.
type TamperReporter interface {
	ReportTamper(ctx context.Context, entry models.Entry) error
}

type Logger struct {
	store       Store
	pipeline    *resilience.Pipeline
	subscribers []Subscriber
	reporter    TamperReporter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	newID       func() id.EntryID
}

// Option configures the Logger.
type Option func(*Logger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithPipeline guards store writes and reads with the audit resilience stack.
func WithPipeline(p *resilience.Pipeline) Option {
	return func(l *Logger) {
		l.pipeline = p
	}
}

// WithSubscribers registers the analysis queues.
func WithSubscribers(subs ...Subscriber) Option {
	return func(l *Logger) {
		l.subscribers = append(l.subscribers, subs...)
	}
}

func WithTamperReporter(r TamperReporter) Option {
	return func(l *Logger) {
		l.reporter = r
	}
}

func New(store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Logger{
		store:  store,
		logger: slog.Default(),
		newID:  id.NewEntryID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AddSubscriber registers a subscriber after construction. It must be called
// before the logger serves traffic.
func (l *Logger) AddSubscriber(sub Subscriber) {
	l.subscribers = append(l.subscribers, sub)
}

// SetTamperReporter wires the reporter after construction, for callers whose
// reporter itself depends on the logger.
func (l *Logger) SetTamperReporter(r TamperReporter) {
	l.reporter = r
}

// Append writes exactly one entry for rec.
func (l *Logger) Append(ctx context.Context, rec models.Record) (*models.Entry, error) {
	ctx, span := tracer.Start(ctx, "audit.append")
	defer span.End()

	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	entry := &models.Entry{
		ID:         l.newID(),
		TenantID:   rec.TenantID,
		Timestamp:  models.Truncate(requestcontext.Now(ctx)),
		Actor:      rec.Actor,
		Action:     rec.Action,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		RefersTo:   rec.RefersTo,
		Details:    maps.Clone(rec.Details),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
		Verified:   true,
	}
	if entry.Actor == "" {
		entry.Actor = requestcontext.Actor(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	entry.Checksum = entry.ComputeChecksum()
	span.SetAttributes(
		attribute.String("audit.action", string(entry.Action)),
		attribute.String("tenant.id", entry.TenantID.String()),
	)

	start := time.Now()
	err := l.pipeline.Execute(ctx, func(ctx context.Context) error {
		err := l.store.Append(ctx, entry)
		if errors.Is(err, sentinel.ErrConflict) {
			// A retried write that already landed.
			return nil
		}
		return err
	})
	if err != nil {
		if l.metrics != nil {
			l.metrics.AppendFailures.Inc()
		}
		l.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
			"tenant_id", entry.TenantID,
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		return nil, dErrors.Wrap(err, dErrors.CodeAuditWriteFailed, "audit write failed")
	}
	if l.metrics != nil {
		l.metrics.AppendDuration.Observe(time.Since(start).Seconds())
		l.metrics.EntriesAppended.WithLabelValues(string(entry.Action)).Inc()
	}

	// analysis only ever sees committed entries
	committed := *entry
	txcontext.AfterCommit(ctx, func() { l.offer(ctx, committed) })
	return entry, nil
}

func (l *Logger) offer(ctx context.Context, entry models.Entry) {
	for _, sub := range l.subscribers {
		if sub.Offer(ctx, entry) {
			continue
		}
		if l.metrics != nil {
			l.metrics.SubscriberReject.WithLabelValues(sub.Name()).Inc()
		}
	}
}

// Verify recomputes the checksum of a stored entry. A mismatch clears the
// verified flag and reports tampering; the entry itself is never rewritten.
func (l *Logger) Verify(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify")
	defer span.End()

	entry, err := resilience.Do(ctx, l.pipeline, func(ctx context.Context) (*models.Entry, error) {
		return l.store.Get(ctx, tenantID, entryID)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "audit entry not found")
		}
		return false, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "load audit entry")
	}
	return l.verifyEntry(ctx, entry)
}

func (l *Logger) verifyEntry(ctx context.Context, entry *models.Entry) (bool, error) {
	if entry.ChecksumMatches() {
		if l.metrics != nil {
			l.metrics.Verifications.WithLabelValues("ok").Inc()
		}
		return true, nil
	}

	if l.metrics != nil {
		l.metrics.Verifications.WithLabelValues("mismatch").Inc()
	}
	l.logger.ErrorContext(ctx, "CRITICAL: audit checksum mismatch",
		"tenant_id", entry.TenantID,
		"entry_id", entry.ID,
		"action", entry.Action,
	)

	if entry.Verified {
		if err := l.store.MarkUnverified(ctx, entry.TenantID, entry.ID); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "mark audit entry unverified")
		}
	}
	if l.reporter != nil {
		flagged := *entry
		flagged.Verified = false
		if err := l.reporter.ReportTamper(ctx, flagged); err != nil {
			l.logger.ErrorContext(ctx, "CRITICAL: tamper signal not raised",
				"entry_id", entry.ID,
				"error", err,
			)
		}
	}
	return false, nil
}

// VerifyRange verifies every entry q selects, paging through the store.
func (l *Logger) VerifyRange(ctx context.Context, q models.Query) (*models.VerifyReport, error) {
	if q.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant is required")
	}
	page := q
	page.Limit = models.MaxQueryLimit
	page.Offset = 0

	report := &models.VerifyReport{Failures: []id.EntryID{}}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entries, err := l.store.Query(ctx, page)
		if err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "query audit entries")
		}
		for _, e := range entries {
			ok, err := l.verifyEntry(ctx, e)
			if err != nil {
				return report, err
			}
			report.Checked++
			if !ok {
				report.Failed++
				report.Failures = append(report.Failures, e.ID)
			}
		}
		if len(entries) < page.Limit {
			return report, nil
		}
		page.Offset += len(entries)
	}
}

// Query returns the read-only trail.
func (l *Logger) Query(ctx context.Context, q models.Query) ([]*models.Entry, error) {
	if q.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	switch {
	case q.Limit <= 0:
		q.Limit = models.DefaultQueryLimit
	case q.Limit > models.MaxQueryLimit:
		q.Limit = models.MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	entries, err := resilience.Do(ctx, l.pipeline, func(ctx context.Context) ([]*models.Entry, error) {
		return l.store.Query(ctx, q)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "query audit entries")
	}
	return entries, nil
}

func validateRecord(rec models.Record) error {
	switch {
	case rec.TenantID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "audit record requires a tenant")
	case rec.Action == "":
		return dErrors.New(dErrors.CodeValidation, "audit record requires an action")
	case rec.EntityType == "":
		return dErrors.New(dErrors.CodeValidation, "audit record requires an entity type")
	case rec.EntityID == "":
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("audit record %s requires an entity id", rec.Action))
	}
	return nil
}
