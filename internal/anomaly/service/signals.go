package service

import (
	"context"
	"errors"
	"log/slog"

	"timekeep/internal/anomaly/models"
	auditmodels "timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
	"timekeep/pkg/requestcontext"
)

// Signals is the operator-facing side: listing signals and moving them
// through their lifecycle. Each transition commits with its audit entry.
type Signals struct {
	store   SignalStore
	auditor Auditor
	tx      txcontext.Runner
	logger  *slog.Logger
	metrics *Metrics
}

type SignalsOption func(*Signals)

func WithSignalsLogger(logger *slog.Logger) SignalsOption {
	return func(s *Signals) {
		s.logger = logger
	}
}

func WithSignalsMetrics(m *Metrics) SignalsOption {
	return func(s *Signals) {
		s.metrics = m
	}
}

func WithTxRunner(r txcontext.Runner) SignalsOption {
	return func(s *Signals) {
		s.tx = r
	}
}

func NewSignals(store SignalStore, auditor Auditor, opts ...SignalsOption) (*Signals, error) {
	if store == nil || auditor == nil {
		return nil, errors.New("signal store and auditor are required")
	}
	s := &Signals{store: store, auditor: auditor, tx: txcontext.MemoryRunner{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signals) Get(ctx context.Context, tenantID id.TenantID, signalID id.SignalID) (*models.Signal, error) {
	sig, err := s.store.Get(ctx, tenantID, signalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get signal")
	}
	return sig, nil
}

func (s *Signals) List(ctx context.Context, q models.Query) ([]*models.Signal, error) {
	if q.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant is required")
	}
	switch {
	case q.Limit <= 0:
		q.Limit = models.DefaultQueryLimit
	case q.Limit > models.MaxQueryLimit:
		q.Limit = models.MaxQueryLimit
	}
	q.Offset = max(q.Offset, 0)
	signals, err := s.store.List(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list signals")
	}
	return signals, nil
}

// Transition moves a signal to status to on behalf of actor. Moves outside
// the lifecycle table are rejected with invariant_violation.
func (s *Signals) Transition(ctx context.Context, tenantID id.TenantID, signalID id.SignalID, to models.Status, actor, note string) (*models.Signal, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	var sig *models.Signal
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		sig, err = s.Get(ctx, tenantID, signalID)
		if err != nil {
			return err
		}
		from := sig.Status
		if !from.CanTransition(to) {
			return dErrors.New(dErrors.CodeInvariantViolation, "signal cannot move from "+string(from)+" to "+string(to))
		}
		sig.Status = to
		sig.UpdatedAt = requestcontext.Now(ctx).UTC()
		if err := s.store.Update(ctx, sig); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update signal")
		}
		details := map[string]string{
			auditmodels.DetailStatus:     string(to),
			auditmodels.DetailPrevious:   string(from),
			auditmodels.DetailSignalType: string(sig.Type),
			auditmodels.DetailSeverity:   string(sig.Severity),
		}
		if note != "" {
			details[auditmodels.DetailReason] = note
		}
		_, err = s.auditor.Append(ctx, auditmodels.Record{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     auditmodels.ActionAlertStatusChanged,
			EntityType: auditmodels.EntitySignal,
			EntityID:   sig.ID.String(),
			Details:    details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	}
	s.logger.InfoContext(ctx, "signal status changed",
		"tenant_id", tenantID,
		"signal_id", signalID,
		"status", to,
		"actor", actor,
	)
	return sig, nil
}
