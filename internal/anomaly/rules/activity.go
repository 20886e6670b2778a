package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"timekeep/internal/anomaly/models"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/pkg/platform/resilience"
)

// MassExport flags a single export at or above the row threshold.
type MassExport struct {
	rows int
}

func (r *MassExport) Type() models.Type { return models.TypeMassExport }

func (r *MassExport) Evaluate(_ context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	if entry.Action != auditmodels.ActionDataExported || r.rows <= 0 {
		return nil, nil
	}
	rows, ok, err := floatDetail(entry, auditmodels.DetailRows)
	if err != nil || !ok {
		return nil, err
	}
	if rows < float64(r.rows) {
		return nil, nil
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityHigh,
		Subject:   entry.Actor,
		Metric:    "export_rows",
		Threshold: float64(r.rows),
		Actual:    rows,
		Message:   fmt.Sprintf("export of %.0f rows", rows),
	}, nil
}

// SalaryChange flags a change whose magnitude, relative to the old amount,
// reaches the configured percentage.
type SalaryChange struct {
	percent float64
}

func (r *SalaryChange) Type() models.Type { return models.TypeSalaryChange }

func (r *SalaryChange) Evaluate(_ context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	if entry.Action != auditmodels.ActionSalaryChanged || r.percent <= 0 {
		return nil, nil
	}
	oldAmount, okOld, err := floatDetail(entry, auditmodels.DetailOldAmount)
	if err != nil {
		return nil, err
	}
	newAmount, okNew, err := floatDetail(entry, auditmodels.DetailNewAmount)
	if err != nil {
		return nil, err
	}
	// no base to compare against
	if !okOld || !okNew || oldAmount <= 0 {
		return nil, nil
	}
	change := math.Abs(newAmount-oldAmount) / oldAmount * 100
	if change < r.percent {
		return nil, nil
	}
	subject := entry.Details[auditmodels.DetailEmployeeID]
	if subject == "" {
		subject = entry.EntityID
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityMedium,
		Subject:   subject,
		Metric:    "salary_change_percent",
		Threshold: r.percent,
		Actual:    math.Round(change*100) / 100,
		Message:   fmt.Sprintf("salary changed from %.2f to %.2f by %s", oldAmount, newAmount, entry.Actor),
	}, nil
}

// RapidAction counts a person's audited actions over a short window.
type RapidAction struct {
	threshold int
	window    time.Duration
	deps      Deps
}

func (r *RapidAction) Type() models.Type { return models.TypeRapidAction }

func (r *RapidAction) Evaluate(ctx context.Context, entry auditmodels.Entry) (*models.Finding, error) {
	if r.threshold <= 0 || entry.Actor == "" || isAutomated(entry.Actor) {
		return nil, nil
	}
	count, err := resilience.Do(ctx, r.deps.Pipeline, func(ctx context.Context) (int, error) {
		return r.deps.Windows.Record(ctx, entry.TenantID, windowKey(r.Type(), entry.Actor), entry.ID.String(), entry.Timestamp, r.window)
	})
	if err != nil {
		return nil, err
	}
	if count < r.threshold {
		return nil, nil
	}
	if opened, err := opensEpisode(ctx, r.deps, r.Type(), entry, entry.Actor, r.window); err != nil || !opened {
		return nil, err
	}
	return &models.Finding{
		Type:      r.Type(),
		Severity:  models.SeverityMedium,
		Subject:   entry.Actor,
		Metric:    "actions",
		Threshold: float64(r.threshold),
		Actual:    float64(count),
		Message:   fmt.Sprintf("%d actions within %s", count, r.window),
	}, nil
}
