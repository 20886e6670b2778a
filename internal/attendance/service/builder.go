// Package service implements the attendance state builder: the per-employee,
// per-day state machine fed by resolved punches.
//
// Apply performs at most one span mutation per punch and never opens its own
// transaction; the caller holds the per-key lock and the transaction that
// also carries the audit write. Sweep and Correct are self-contained: each
// span change and its audit entry commit together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"timekeep/internal/attendance/models"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/internal/notify"
	punchmodels "timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
	"timekeep/pkg/requestcontext"
)

var tracer = otel.Tracer("timekeep/attendance")

// Store persists spans. FindOpen returns sentinel.ErrNotFound when the
// employee has no checked_in span for the work date; Create returns
// sentinel.ErrConflict when one already exists.
type Store interface {
	FindOpen(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Span, error)
	Get(ctx context.Context, tenantID id.TenantID, spanID id.SpanID) (*models.Span, error)
	Create(ctx context.Context, span *models.Span) error
	Update(ctx context.Context, span *models.Span) error
	ListOpen(ctx context.Context, tenantID id.TenantID, date time.Time) ([]*models.Span, error)
}

// ShiftLookup is the scheduling collaborator.
type ShiftLookup interface {
	Lookup(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, error)
}

// Auditor records sweep and correction outcomes.
type Auditor interface {
	Append(ctx context.Context, rec auditmodels.Record) (*auditmodels.Entry, error)
}

// Locker provides per-key exclusion.
type Locker interface {
	Lock(key string) (unlock func())
}

type Builder struct {
	store         Store
	shifts        ShiftLookup
	auditor       Auditor
	tx            txcontext.Runner
	locker        Locker
	shiftPipeline *resilience.Pipeline
	events        notify.Sink
	logger        *slog.Logger
	metrics       *Metrics
}

type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithTxRunner makes sweep and correction writes atomic with their audit
// entries.
func WithTxRunner(r txcontext.Runner) Option {
	return func(b *Builder) {
		b.tx = r
	}
}

// WithLocker shares the ingestion path's per-key locks so sweeps and
// corrections never interleave with a punch for the same employee and date.
func WithLocker(l Locker) Option {
	return func(b *Builder) {
		b.locker = l
	}
}

func WithShiftPipeline(p *resilience.Pipeline) Option {
	return func(b *Builder) {
		b.shiftPipeline = p
	}
}

// WithEvents publishes AttendanceUpdated for sweeps and corrections.
func WithEvents(sink notify.Sink) Option {
	return func(b *Builder) {
		b.events = sink
	}
}

func New(store Store, shifts ShiftLookup, auditor Auditor, opts ...Option) (*Builder, error) {
	if store == nil || shifts == nil || auditor == nil {
		return nil, errors.New("store, shift lookup and auditor are required")
	}
	b := &Builder{
		store:   store,
		shifts:  shifts,
		auditor: auditor,
		tx:      txcontext.MemoryRunner{},
		locker:  noLock{},
		events:  notify.Discard{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type noLock struct{}

func (noLock) Lock(string) func() { return func() {} }

// Apply advances the employee's state machine with p.
//
// A punch that is already processed is a no-op. A rejected punch returns a
// Mutation of kind none together with a coded error: duplicate_checkin,
// no_check_in or sequence_violation. Warnings that do not reject the punch
// (shift_unavailable, open_break_closed) are carried on the Mutation.
func (b *Builder) Apply(ctx context.Context, tenantID id.TenantID, p *punchmodels.Resolved) (*models.Mutation, error) {
	if p.Status == punchmodels.StatusProcessed {
		return &models.Mutation{Kind: models.MutationNone, Warnings: []dErrors.Code{}}, nil
	}
	if p.EmployeeID == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "punch has no resolved employee")
	}

	ctx, span := tracer.Start(ctx, "attendance.apply")
	defer span.End()
	span.SetAttributes(attribute.String("punch.type", string(p.Type)))

	var (
		m   *models.Mutation
		err error
	)
	switch p.Type {
	case punchmodels.TypeCheckIn:
		m, err = b.checkIn(ctx, tenantID, *p.EmployeeID, p)
	case punchmodels.TypeCheckOut:
		m, err = b.checkOut(ctx, tenantID, *p.EmployeeID, p)
	case punchmodels.TypeBreakStart, punchmodels.TypeBreakEnd:
		m, err = b.breakPunch(ctx, tenantID, *p.EmployeeID, p)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown punch type")
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.Rejections.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
		}
		return m, err
	}
	if b.metrics != nil {
		b.metrics.Mutations.WithLabelValues(string(m.Kind)).Inc()
	}
	return m, nil
}

func (b *Builder) checkIn(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, p *punchmodels.Resolved) (*models.Mutation, error) {
	open, err := b.findOpen(ctx, tenantID, employeeID, p.WorkDate())
	if err != nil {
		return nil, err
	}
	if open != nil {
		return rejected(open, dErrors.CodeDuplicateCheckIn, "employee is already checked in")
	}

	now := requestcontext.Now(ctx)
	sp := &models.Span{
		ID:           id.NewSpanID(),
		TenantID:     tenantID,
		EmployeeID:   employeeID,
		Date:         p.WorkDate(),
		CheckIn:      p.PunchTime.UTC(),
		CheckInPunch: p.ID,
		Breaks:       []models.Break{},
		Status:       models.StatusCheckedIn,
		UpdatedAt:    now,
	}
	m := &models.Mutation{Kind: models.MutationCreated, Span: sp, Warnings: []dErrors.Code{}}
	shift, warn := b.shift(ctx, tenantID, employeeID, sp.Date)
	if warn != "" {
		m.Warnings = append(m.Warnings, warn)
	}
	sp.Recompute(shift)

	if err := b.store.Create(ctx, sp); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// lost a race against another check-in for the same employee and day
			return rejected(nil, dErrors.CodeDuplicateCheckIn, "employee is already checked in")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create span")
	}
	return m, nil
}

func (b *Builder) checkOut(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, p *punchmodels.Resolved) (*models.Mutation, error) {
	open, err := b.findOpen(ctx, tenantID, employeeID, p.WorkDate())
	if err != nil {
		return nil, err
	}
	if open == nil {
		return rejected(nil, dErrors.CodeNoCheckIn, "no open attendance span to check out")
	}
	out := p.PunchTime.UTC()
	if out.Before(open.CheckIn) {
		return rejected(open, dErrors.CodeSequenceViolation, "check-out precedes check-in")
	}

	m := &models.Mutation{Kind: models.MutationCompleted, Span: open, Warnings: []dErrors.Code{}}
	if br := open.OpenBreak(); br != nil {
		end := out
		if end.Before(br.Start) {
			end = br.Start
		}
		br.End = &end
		m.Warnings = append(m.Warnings, dErrors.CodeOpenBreakClosed)
	}
	punchID := p.ID
	open.CheckOut = &out
	open.CheckOutPunch = &punchID
	open.Status = models.StatusCompleted
	open.UpdatedAt = requestcontext.Now(ctx)

	shift, warn := b.shift(ctx, tenantID, employeeID, open.Date)
	if warn != "" {
		m.Warnings = append(m.Warnings, warn)
	}
	open.Recompute(shift)

	if err := b.store.Update(ctx, open); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update span")
	}
	return m, nil
}

func (b *Builder) breakPunch(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, p *punchmodels.Resolved) (*models.Mutation, error) {
	open, err := b.findOpen(ctx, tenantID, employeeID, p.WorkDate())
	if err != nil {
		return nil, err
	}
	if open == nil {
		return rejected(nil, dErrors.CodeNoCheckIn, "no open attendance span for break")
	}
	at := p.PunchTime.UTC()
	running := open.OpenBreak()

	switch p.Type {
	case punchmodels.TypeBreakStart:
		if running != nil {
			return rejected(open, dErrors.CodeSequenceViolation, "a break is already running")
		}
		if at.Before(open.CheckIn) {
			return rejected(open, dErrors.CodeSequenceViolation, "break starts before check-in")
		}
		open.Breaks = append(open.Breaks, models.Break{Start: at})
	default:
		if running == nil {
			return rejected(open, dErrors.CodeSequenceViolation, "break end without break start")
		}
		if at.Before(running.Start) {
			return rejected(open, dErrors.CodeSequenceViolation, "break ends before it starts")
		}
		running.End = &at
	}
	open.UpdatedAt = requestcontext.Now(ctx)
	open.BreakTime = open.ClosedBreakTime()

	if err := b.store.Update(ctx, open); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update span")
	}
	return &models.Mutation{Kind: models.MutationBreak, Span: open, Warnings: []dErrors.Code{}}, nil
}

func rejected(span *models.Span, code dErrors.Code, msg string) (*models.Mutation, error) {
	return &models.Mutation{Kind: models.MutationNone, Span: span, Warnings: []dErrors.Code{code}}, dErrors.New(code, msg)
}

// findOpen returns nil without error when the employee has no open span on
// date. Spans are per work date: an earlier day left open is closed by the
// end-of-day sweep, never by a later day's punches.
func (b *Builder) findOpen(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Span, error) {
	sp, err := b.store.FindOpen(ctx, tenantID, employeeID, date)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load open span")
	}
	return sp, nil
}

// shift looks up the expected shift. A missing shift yields nil silently; an
// unavailable scheduler yields nil with the shift_unavailable warning so the
// punch still completes.
func (b *Builder) shift(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Shift, dErrors.Code) {
	shift, err := resilience.Do(ctx, b.shiftPipeline, func(ctx context.Context) (*models.Shift, error) {
		return b.shifts.Lookup(ctx, tenantID, employeeID, date)
	})
	switch {
	case err == nil:
		return shift, ""
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, ""
	default:
		if b.metrics != nil {
			b.metrics.ShiftFallbacks.Inc()
		}
		b.logger.WarnContext(ctx, "shift lookup failed; computing without shift",
			"tenant_id", tenantID,
			"employee_id", employeeID,
			"error", err,
		)
		return nil, dErrors.CodeShiftUnavailable
	}
}

// SweepIncomplete marks every span still checked in on or before date as
// incomplete. Each span commits with its own audit entry; a failure on one
// span does not stop the others and is reported in the joined error.
func (b *Builder) SweepIncomplete(ctx context.Context, tenantID id.TenantID, date time.Time) ([]*models.Span, error) {
	ctx, span := tracer.Start(ctx, "attendance.sweep")
	defer span.End()

	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	open, err := b.store.ListOpen(ctx, tenantID, date)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list open spans")
	}

	var (
		swept []*models.Span
		errs  []error
	)
	for _, candidate := range open {
		sp, err := b.sweepOne(ctx, tenantID, candidate)
		if err != nil {
			errs = append(errs, fmt.Errorf("span %s: %w", candidate.ID, err))
			continue
		}
		if sp != nil {
			swept = append(swept, sp)
		}
	}
	span.SetAttributes(attribute.Int("attendance.swept", len(swept)))
	b.logger.InfoContext(ctx, "end-of-day sweep finished",
		"tenant_id", tenantID,
		"date", date.Format(time.DateOnly),
		"swept", len(swept),
		"failed", len(errs),
	)
	return swept, errors.Join(errs...)
}

func (b *Builder) sweepOne(ctx context.Context, tenantID id.TenantID, candidate *models.Span) (*models.Span, error) {
	unlock := b.locker.Lock(models.LockKey(tenantID, candidate.EmployeeID, candidate.Date))
	defer unlock()

	var swept *models.Span
	err := b.tx.RunInTx(ctx, func(ctx context.Context) error {
		sp, err := b.store.Get(ctx, tenantID, candidate.ID)
		if err != nil {
			return err
		}
		if !sp.Status.IsOpen() {
			// checked out since the listing
			return nil
		}
		sp.Status = models.StatusIncomplete
		sp.UpdatedAt = requestcontext.Now(ctx)
		if sp.OpenBreak() != nil {
			sp.Breaks = dropOpenBreak(sp.Breaks)
		}
		sp.BreakTime = sp.ClosedBreakTime()
		if err := b.store.Update(ctx, sp); err != nil {
			return err
		}
		if _, err := b.auditor.Append(ctx, auditmodels.Record{
			TenantID:   tenantID,
			Actor:      "system:sweep",
			Action:     auditmodels.ActionAttendanceIncomplete,
			EntityType: auditmodels.EntitySpan,
			EntityID:   sp.ID.String(),
			Details: map[string]string{
				auditmodels.DetailEmployeeID: sp.EmployeeID.String(),
			},
		}); err != nil {
			return err
		}
		swept = sp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if swept != nil {
		if b.metrics != nil {
			b.metrics.SweptIncomplete.Inc()
		}
		b.publish(ctx, swept)
	}
	return swept, nil
}

func dropOpenBreak(breaks []models.Break) []models.Break {
	out := breaks[:0]
	for _, br := range breaks {
		if br.End != nil {
			out = append(out, br)
		}
	}
	return out
}

// Correct applies an approved correction and records it. The correction
// entry refers to the approval's own audit entry when one is given.
func (b *Builder) Correct(ctx context.Context, tenantID id.TenantID, spanID id.SpanID, c models.Correction) (*models.Span, error) {
	ctx, span := tracer.Start(ctx, "attendance.correct")
	defer span.End()

	if c.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	current, err := b.store.Get(ctx, tenantID, spanID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attendance span not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load span")
	}

	unlock := b.locker.Lock(models.LockKey(tenantID, current.EmployeeID, current.Date))
	defer unlock()

	var corrected *models.Span
	err = b.tx.RunInTx(ctx, func(ctx context.Context) error {
		sp, err := b.store.Get(ctx, tenantID, spanID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load span")
		}
		if err := applyCorrection(sp, c); err != nil {
			return err
		}
		sp.UpdatedAt = requestcontext.Now(ctx)
		shift, _ := b.shift(ctx, tenantID, sp.EmployeeID, sp.Date)
		sp.Recompute(shift)
		if err := b.store.Update(ctx, sp); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "employee already has an open span")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "update span")
		}
		if _, err := b.auditor.Append(ctx, auditmodels.Record{
			TenantID:   tenantID,
			Action:     auditmodels.ActionAttendanceCorrected,
			EntityType: auditmodels.EntitySpan,
			EntityID:   sp.ID.String(),
			RefersTo:   c.RefersTo,
			Details: map[string]string{
				auditmodels.DetailEmployeeID: sp.EmployeeID.String(),
				auditmodels.DetailReason:     c.Reason,
			},
		}); err != nil {
			return err
		}
		corrected = sp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.Corrections.Inc()
	}
	b.publish(ctx, corrected)
	return corrected, nil
}

func applyCorrection(sp *models.Span, c models.Correction) error {
	if c.CheckIn != nil {
		sp.CheckIn = c.CheckIn.UTC()
	}
	if c.CheckOut != nil {
		out := c.CheckOut.UTC()
		sp.CheckOut = &out
	}
	if c.Breaks != nil {
		sp.Breaks = make([]models.Break, 0, len(c.Breaks))
		for _, br := range c.Breaks {
			if br.End == nil {
				return dErrors.New(dErrors.CodeValidation, "corrected breaks must be closed")
			}
			start, end := br.Start.UTC(), br.End.UTC()
			sp.Breaks = append(sp.Breaks, models.Break{Start: start, End: &end})
		}
	}
	if sp.CheckOut != nil {
		if sp.CheckOut.Before(sp.CheckIn) {
			return dErrors.New(dErrors.CodeValidation, "check-out precedes check-in")
		}
		sp.Status = models.StatusCompleted
	}
	for _, br := range sp.Breaks {
		if br.End != nil && br.End.Before(br.Start) {
			return dErrors.New(dErrors.CodeValidation, "break ends before it starts")
		}
		if br.Start.Before(sp.CheckIn) || (sp.CheckOut != nil && br.End != nil && br.End.After(*sp.CheckOut)) {
			return dErrors.New(dErrors.CodeValidation, "break lies outside the span")
		}
	}
	return nil
}

func (b *Builder) publish(ctx context.Context, sp *models.Span) {
	ev := notify.New(notify.EventAttendanceUpdated, sp.TenantID, requestcontext.Now(ctx), models.NewSpanResponse(sp))
	if !b.events.TryEnqueue(ev) {
		b.logger.DebugContext(ctx, "attendance event dropped", "span_id", sp.ID)
	}
}

// Get returns one span.
func (b *Builder) Get(ctx context.Context, tenantID id.TenantID, spanID id.SpanID) (*models.Span, error) {
	sp, err := b.store.Get(ctx, tenantID, spanID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attendance span not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load span")
	}
	return sp, nil
}
