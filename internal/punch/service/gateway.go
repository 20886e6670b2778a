// Package service implements the ingestion gateway: validation, then the
// synchronous stages (resolution, state builder, audit write), then
// non-blocking notification. Rule evaluation happens off this path.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	attendancemodels "timekeep/internal/attendance/models"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/internal/notify"
	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	txcontext "timekeep/pkg/platform/tx"
	"timekeep/pkg/requestcontext"
)

var tracer = otel.Tracer("timekeep/punch")

// Resolver is the dedup and identity stage. Release undoes the fingerprint
// claim Resolve made when the punch fails to commit.
type Resolver interface {
	Resolve(ctx context.Context, tenantID id.TenantID, ev models.Event) (*models.Resolved, error)
	ResolvePending(ctx context.Context, tenantID id.TenantID, punchID id.PunchID, employeeID id.EmployeeID) (*models.Resolved, error)
	Release(ctx context.Context, tenantID id.TenantID, fingerprint string)
}

// StateBuilder applies resolved punches to attendance spans.
type StateBuilder interface {
	Apply(ctx context.Context, tenantID id.TenantID, p *models.Resolved) (*attendancemodels.Mutation, error)
}

// Store persists every valid punch, whatever its outcome.
type Store interface {
	Get(ctx context.Context, tenantID id.TenantID, punchID id.PunchID) (*models.Resolved, error)
	Save(ctx context.Context, p *models.Resolved) error
	ListPending(ctx context.Context, tenantID id.TenantID, limit int) ([]*models.Resolved, error)
}

// Auditor is the synchronous audit write.
type Auditor interface {
	Append(ctx context.Context, rec auditmodels.Record) (*auditmodels.Entry, error)
}

// Locker provides per-key exclusion.
type Locker interface {
	Lock(key string) (unlock func())
}

type Gateway struct {
	resolver Resolver
	builder  StateBuilder
	store    Store
	auditor  Auditor
	tx       txcontext.Runner
	locker   Locker
	events   notify.Sink
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTxRunner commits the span mutation, the punch record and the audit
// entry together.
func WithTxRunner(r txcontext.Runner) Option {
	return func(g *Gateway) {
		g.tx = r
	}
}

func WithLocker(l Locker) Option {
	return func(g *Gateway) {
		g.locker = l
	}
}

// WithEvents sets where NewPunch and AttendanceUpdated go.
func WithEvents(sink notify.Sink) Option {
	return func(g *Gateway) {
		g.events = sink
	}
}

func New(resolver Resolver, builder StateBuilder, store Store, auditor Auditor, opts ...Option) (*Gateway, error) {
	if resolver == nil || builder == nil || store == nil || auditor == nil {
		return nil, errors.New("resolver, state builder, store and auditor are required")
	}
	g := &Gateway{
		resolver: resolver,
		builder:  builder,
		store:    store,
		auditor:  auditor,
		tx:       txcontext.MemoryRunner{},
		events:   notify.Discard{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.locker == nil {
		return nil, errors.New("locker is required")
	}
	return g, nil
}

// Submit ingests one capture for the tenant in ctx. It always returns a
// result; invalid input is rejected with no side effects, and every valid
// submission writes exactly one audit entry unless the audit write itself
// fails.
func (g *Gateway) Submit(ctx context.Context, req models.CaptureRequest) *models.Result {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "punch.submit")
	defer span.End()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return models.Rejected(dErrors.CodeUnauthorized, "tenant is required")
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		if g.metrics != nil {
			g.metrics.Rejected.Inc()
		}
		return &models.Result{
			Success:  false,
			Message:  "validation failed",
			Warnings: []dErrors.Code{},
			Errors:   errs,
		}
	}

	ev := g.event(ctx, tenantID, req)
	span.SetAttributes(
		attribute.String("tenant.id", tenantID.String()),
		attribute.String("punch.id", ev.ID.String()),
		attribute.String("punch.type", string(ev.Type)),
	)

	res, err := g.resolver.Resolve(ctx, tenantID, ev)
	var result *models.Result
	switch {
	case err != nil:
		span.RecordError(err)
		result = g.record(ctx, res, err)
	case res.Status == models.StatusDuplicate || res.EmployeeID == nil:
		result = g.record(ctx, res, nil)
	default:
		result = g.process(ctx, res, false)
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	if g.metrics != nil {
		g.metrics.Submissions.WithLabelValues(string(result.Status)).Inc()
		g.metrics.Duration.Observe(time.Since(start).Seconds())
	}
	return result
}

// SubmitBatch processes captures in order, each independently: one item's
// rejection never affects the others.
func (g *Gateway) SubmitBatch(ctx context.Context, reqs []models.CaptureRequest) *models.BatchResponse {
	resp := &models.BatchResponse{Results: make([]*models.Result, 0, len(reqs))}
	for _, req := range reqs {
		r := g.Submit(ctx, req)
		if r.Success {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
		resp.Results = append(resp.Results, r)
	}
	return resp
}

// ResolvePending assigns an employee to a held punch and runs it through the
// state builder as if it had just arrived.
func (g *Gateway) ResolvePending(ctx context.Context, punchID id.PunchID, employeeID id.EmployeeID) *models.Result {
	ctx, span := tracer.Start(ctx, "punch.resolve_pending")
	defer span.End()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return models.Rejected(dErrors.CodeUnauthorized, "tenant is required")
	}
	res, err := g.resolver.ResolvePending(ctx, tenantID, punchID, employeeID)
	if err != nil {
		r := models.Rejected(dErrors.CodeOf(err), errorMessage(err))
		r.PunchID = punchID.String()
		return r
	}
	res.Warnings = without(res.Warnings, dErrors.CodeUnresolvedIdentity)
	result := g.process(ctx, res, true)
	if g.metrics != nil {
		g.metrics.Submissions.WithLabelValues(string(result.Status)).Inc()
	}
	return result
}

// ListPending returns punches awaiting manual resolution.
func (g *Gateway) ListPending(ctx context.Context, limit int) ([]*models.Resolved, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "tenant is required")
	}
	punches, err := g.store.ListPending(ctx, tenantID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending punches")
	}
	return punches, nil
}

func (g *Gateway) event(ctx context.Context, tenantID id.TenantID, req models.CaptureRequest) models.Event {
	ev := models.Event{
		ID:                 id.NewPunchID(),
		TenantID:           tenantID,
		DeviceSerial:       req.DeviceSerial,
		DeviceUserID:       req.DeviceUserID,
		PunchTime:          req.PunchTime.UTC(),
		Type:               req.PunchType,
		VerificationMethod: req.VerificationMethod,
		Quality:            req.Quality,
		RawPayload:         req.RawPayload,
		ReceivedAt:         requestcontext.Now(ctx),
	}
	if req.Latitude != nil && req.Longitude != nil {
		ev.Location = &models.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	return ev
}

// record persists and audits a punch that never reaches the state builder:
// duplicates, unresolved identities and resolution failures.
func (g *Gateway) record(ctx context.Context, res *models.Resolved, cause error) *models.Result {
	var action auditmodels.Action
	switch {
	case cause != nil:
		res.Status = models.StatusFailed
		action = auditmodels.ActionPunchFailed
	case res.Status == models.StatusDuplicate:
		action = auditmodels.ActionPunchDuplicate
	default:
		action = auditmodels.ActionPunchPending
	}

	// a duplicate never owned the claim, and a resolution failure has
	// already released it
	owned := cause == nil && res.Status != models.StatusDuplicate
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.Save(ctx, res); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save punch")
		}
		return g.audit(ctx, res, action, cause)
	})
	if err != nil {
		return g.failed(ctx, res, err, owned)
	}

	if cause != nil {
		result := g.result(res, false, errorMessage(cause))
		result.Errors = []models.FieldError{{Code: dErrors.CodeOf(cause), Message: errorMessage(cause)}}
		return result
	}
	if res.Status == models.StatusDuplicate {
		return g.result(res, true, "duplicate punch ignored")
	}
	g.publishPunch(ctx, res)
	return g.result(res, true, "punch held for identity resolution")
}

// process runs a resolved punch through the state builder under the
// employee's per-day lock. The span change, the punch record and its audit
// entry commit together or not at all.
//
// A manual resolution re-reads the held punch under the lock: only one of
// several concurrent resolutions of the same punch may apply it.
func (g *Gateway) process(ctx context.Context, res *models.Resolved, manual bool) *models.Result {
	unlock := g.locker.Lock(attendancemodels.LockKey(res.TenantID, *res.EmployeeID, res.WorkDate()))
	defer unlock()

	var (
		mutation *attendancemodels.Mutation
		rejected error
	)
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		if manual {
			if err := g.stillPending(ctx, res); err != nil {
				return err
			}
		}
		m, err := g.builder.Apply(ctx, res.TenantID, res)
		switch {
		case err == nil:
			res.Status = models.StatusProcessed
		case dErrors.HasCode(err, dErrors.CodeDuplicateCheckIn):
			res.Status = models.StatusIgnored
		case dErrors.HasCode(err, dErrors.CodeNoCheckIn), dErrors.HasCode(err, dErrors.CodeSequenceViolation):
			res.Status = models.StatusFailed
		default:
			return err
		}
		rejected = err
		mutation = m
		if m != nil {
			for _, w := range m.Warnings {
				res.AddWarning(w)
			}
			if m.Span != nil && res.Status != models.StatusFailed {
				spanID := m.Span.ID
				res.SpanID = &spanID
			}
		}
		if err := g.store.Save(ctx, res); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save punch")
		}
		action := actionFor(res.Status)
		if manual {
			action = auditmodels.ActionPunchResolved
		}
		return g.audit(ctx, res, action, rejected)
	})
	if err != nil {
		if manual && dErrors.HasCode(err, dErrors.CodeConflict) {
			r := models.Rejected(dErrors.CodeConflict, errorMessage(err))
			r.PunchID = res.ID.String()
			return r
		}
		// a held punch stays held; only a fresh submission owns its claim
		return g.failed(ctx, res, err, !manual)
	}

	switch res.Status {
	case models.StatusFailed:
		result := g.result(res, false, errorMessage(rejected))
		result.Errors = []models.FieldError{{Code: dErrors.CodeOf(rejected), Message: errorMessage(rejected)}}
		return result
	case models.StatusIgnored:
		return g.result(res, true, "duplicate check-in ignored; first check-in kept")
	}
	g.publishPunch(ctx, res)
	if mutation != nil && mutation.Kind != attendancemodels.MutationNone {
		g.emit(ctx, notify.New(notify.EventAttendanceUpdated, res.TenantID, requestcontext.Now(ctx),
			attendancemodels.NewSpanResponse(mutation.Span)))
	}
	return g.result(res, true, "punch processed")
}

func (g *Gateway) stillPending(ctx context.Context, res *models.Resolved) error {
	current, err := g.store.Get(ctx, res.TenantID, res.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "reload punch")
	}
	if current.Status != models.StatusPending || current.EmployeeID != nil {
		return dErrors.New(dErrors.CodeConflict, "punch is not awaiting identity resolution")
	}
	return nil
}

func actionFor(s models.Status) auditmodels.Action {
	switch s {
	case models.StatusProcessed:
		return auditmodels.ActionPunchProcessed
	case models.StatusIgnored:
		return auditmodels.ActionPunchIgnored
	case models.StatusDuplicate:
		return auditmodels.ActionPunchDuplicate
	case models.StatusPending:
		return auditmodels.ActionPunchPending
	default:
		return auditmodels.ActionPunchFailed
	}
}

func (g *Gateway) audit(ctx context.Context, res *models.Resolved, action auditmodels.Action, cause error) error {
	details := map[string]string{
		auditmodels.DetailStatus:    string(res.Status),
		auditmodels.DetailPunchType: string(res.Type),
		auditmodels.DetailPunchTime: res.PunchTime.Format(time.RFC3339),
		auditmodels.DetailDevice:    res.DeviceSerial,
	}
	if res.EmployeeID != nil {
		details[auditmodels.DetailEmployeeID] = res.EmployeeID.String()
	}
	if res.SpanID != nil {
		details[auditmodels.DetailSpanID] = res.SpanID.String()
	}
	if res.Location != nil {
		details[auditmodels.DetailLatitude] = strconv.FormatFloat(res.Location.Latitude, 'f', -1, 64)
		details[auditmodels.DetailLongitude] = strconv.FormatFloat(res.Location.Longitude, 'f', -1, 64)
	}
	if len(res.Warnings) > 0 {
		warnings := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			warnings[i] = string(w)
		}
		details[auditmodels.DetailWarnings] = strings.Join(warnings, ",")
	}
	if cause != nil {
		details[auditmodels.DetailErrorCode] = string(dErrors.CodeOf(cause))
	}

	_, err := g.auditor.Append(ctx, auditmodels.Record{
		TenantID:   res.TenantID,
		Actor:      "device:" + res.DeviceSerial,
		Action:     action,
		EntityType: auditmodels.EntityPunch,
		EntityID:   res.ID.String(),
		Details:    details,
	})
	return err
}

// failed reports a punch whose transaction rolled back. Nothing from the
// attempt was committed and the device is expected to retry, so a
// fingerprint this attempt claimed is released.
func (g *Gateway) failed(ctx context.Context, res *models.Resolved, err error, release bool) *models.Result {
	if release && res.Fingerprint != "" {
		g.resolver.Release(ctx, res.TenantID, res.Fingerprint)
	}
	code := dErrors.CodeOf(err)
	g.logger.ErrorContext(ctx, "punch processing failed",
		"tenant_id", res.TenantID,
		"punch_id", res.ID,
		"error_code", code,
		"error", err,
	)
	res.Status = models.StatusFailed
	res.SpanID = nil
	result := g.result(res, false, errorMessage(err))
	result.Errors = []models.FieldError{{Code: code, Message: errorMessage(err)}}
	return result
}

func (g *Gateway) result(res *models.Resolved, ok bool, msg string) *models.Result {
	r := &models.Result{
		Success:  ok,
		Message:  msg,
		PunchID:  res.ID.String(),
		Status:   res.Status,
		Warnings: append([]dErrors.Code{}, res.Warnings...),
		Errors:   []models.FieldError{},
	}
	if res.SpanID != nil {
		r.SpanID = res.SpanID.String()
	}
	return r
}

func (g *Gateway) publishPunch(ctx context.Context, res *models.Resolved) {
	n := models.Notification{
		PunchID:      res.ID.String(),
		DeviceSerial: res.DeviceSerial,
		PunchType:    res.Type,
		PunchTime:    res.PunchTime,
		Status:       res.Status,
	}
	if res.EmployeeID != nil {
		n.EmployeeID = res.EmployeeID.String()
	}
	if res.SpanID != nil {
		n.SpanID = res.SpanID.String()
	}
	g.emit(ctx, notify.New(notify.EventNewPunch, res.TenantID, requestcontext.Now(ctx), n))
}

func (g *Gateway) emit(ctx context.Context, ev notify.Event) {
	if !g.events.TryEnqueue(ev) {
		g.logger.DebugContext(ctx, "notification dropped", "type", ev.Type)
	}
}

func errorMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

func without(codes []dErrors.Code, drop dErrors.Code) []dErrors.Code {
	out := make([]dErrors.Code, 0, len(codes))
	for _, c := range codes {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}
