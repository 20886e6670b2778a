package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"timekeep/internal/anomaly/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// PostgresSignals persists signals in anomaly_signals. The unique dedup_key
// column is what makes CreateIfAbsent safe across instances.
type PostgresSignals struct {
	db *sql.DB
}

func NewPostgresSignals(db *sql.DB) *PostgresSignals {
	return &PostgresSignals{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresSignals) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const signalColumns = `id, tenant_id, signal_type, severity, subject, metric, threshold,
	actual, entry_id, dedup_key, message, status, created_at, updated_at`

func (s *PostgresSignals) CreateIfAbsent(ctx context.Context, sig *models.Signal) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `INSERT INTO anomaly_signals (`+signalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dedup_key) DO NOTHING`,
		uuid.UUID(sig.ID), uuid.UUID(sig.TenantID), string(sig.Type), string(sig.Severity), sig.Subject,
		sig.Metric, sig.Threshold, sig.Actual, uuid.UUID(sig.EntryID), sig.DedupKey, sig.Message,
		string(sig.Status), sig.CreatedAt, sig.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresSignals) Get(ctx context.Context, tenantID id.TenantID, signalID id.SignalID) (*models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM anomaly_signals WHERE tenant_id = $1 AND id = $2`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(signalID))
	if err != nil {
		return nil, fmt.Errorf("query signal: %w", err)
	}
	signals, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return signals[0], nil
}

func (s *PostgresSignals) Update(ctx context.Context, sig *models.Signal) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE anomaly_signals SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(sig.TenantID), uuid.UUID(sig.ID), string(sig.Status), sig.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresSignals) List(ctx context.Context, q models.Query) ([]*models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM anomaly_signals
		WHERE tenant_id = $1
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR signal_type = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		uuid.UUID(q.TenantID), string(q.Status), string(q.Type), limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return scanSignals(rows)
}

func scanSignals(rows *sql.Rows) ([]*models.Signal, error) {
	defer rows.Close()
	var out []*models.Signal
	for rows.Next() {
		var (
			sig                      models.Signal
			sigID, tenantID, entryID uuid.UUID
			typ, severity, status    string
		)
		if err := rows.Scan(&sigID, &tenantID, &typ, &severity, &sig.Subject, &sig.Metric, &sig.Threshold,
			&sig.Actual, &entryID, &sig.DedupKey, &sig.Message, &status, &sig.CreatedAt, &sig.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.ID = id.SignalID(sigID)
		sig.TenantID = id.TenantID(tenantID)
		sig.EntryID = id.EntryID(entryID)
		sig.Type = models.Type(typ)
		sig.Severity = models.Severity(severity)
		sig.Status = models.Status(status)
		sig.CreatedAt = sig.CreatedAt.UTC()
		sig.UpdatedAt = sig.UpdatedAt.UTC()
		out = append(out, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}
