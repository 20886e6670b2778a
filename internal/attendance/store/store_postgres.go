package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timekeep/internal/attendance/models"
	"timekeep/internal/platform/postgres"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// PostgresStore persists spans in attendance_spans. Reads of the open span
// lock the row when run inside a transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const spanColumns = `id, tenant_id, employee_id, work_date, check_in, check_out,
	check_in_punch, check_out_punch, breaks, working_seconds, break_seconds,
	overtime_seconds, late_minutes, early_minutes, status, updated_at`

func (s *PostgresStore) FindOpen(ctx context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Span, error) {
	query := `SELECT ` + spanColumns + ` FROM attendance_spans
		WHERE tenant_id = $1 AND employee_id = $2 AND work_date = $3 AND status = 'checked_in'`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	return s.one(ctx, query, uuid.UUID(tenantID), uuid.UUID(employeeID), date.UTC().Format(time.DateOnly))
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, spanID id.SpanID) (*models.Span, error) {
	query := `SELECT ` + spanColumns + ` FROM attendance_spans WHERE tenant_id = $1 AND id = $2`
	return s.one(ctx, query, uuid.UUID(tenantID), uuid.UUID(spanID))
}

func (s *PostgresStore) one(ctx context.Context, query string, args ...any) (*models.Span, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query span: %w", err)
	}
	spans, err := scanSpans(rows)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return spans[0], nil
}

// Create inserts span. The open-span unique index turns a concurrent second
// check-in into sentinel.ErrConflict without aborting the surrounding
// transaction.
func (s *PostgresStore) Create(ctx context.Context, span *models.Span) error {
	args, err := spanArgs(span)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO attendance_spans (` + spanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create span: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create span: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, span *models.Span) error {
	breaks, err := json.Marshal(span.Breaks)
	if err != nil {
		return fmt.Errorf("marshal breaks: %w", err)
	}
	query := `
		UPDATE attendance_spans SET
			check_in = $3, check_out = $4, check_out_punch = $5, breaks = $6,
			working_seconds = $7, break_seconds = $8, overtime_seconds = $9,
			late_minutes = $10, early_minutes = $11, status = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(span.TenantID),
		uuid.UUID(span.ID),
		span.CheckIn,
		span.CheckOut,
		nullableUUID(span.CheckOutPunch),
		breaks,
		int64(span.Working/time.Second),
		int64(span.BreakTime/time.Second),
		int64(span.Overtime/time.Second),
		span.LateMinutes,
		span.EarlyMinutes,
		string(span.Status),
		span.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update span: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update span: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOpen(ctx context.Context, tenantID id.TenantID, date time.Time) ([]*models.Span, error) {
	query := `SELECT ` + spanColumns + ` FROM attendance_spans
		WHERE tenant_id = $1 AND status = 'checked_in' AND work_date <= $2
		ORDER BY check_in`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), date.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("list open spans: %w", err)
	}
	return scanSpans(rows)
}

func spanArgs(span *models.Span) ([]any, error) {
	breaks, err := json.Marshal(span.Breaks)
	if err != nil {
		return nil, fmt.Errorf("marshal breaks: %w", err)
	}
	if span.Breaks == nil {
		breaks = []byte("[]")
	}
	return []any{
		uuid.UUID(span.ID),
		uuid.UUID(span.TenantID),
		uuid.UUID(span.EmployeeID),
		span.Date.Format(time.DateOnly),
		span.CheckIn,
		span.CheckOut,
		uuid.UUID(span.CheckInPunch),
		nullableUUID(span.CheckOutPunch),
		breaks,
		int64(span.Working / time.Second),
		int64(span.BreakTime / time.Second),
		int64(span.Overtime / time.Second),
		span.LateMinutes,
		span.EarlyMinutes,
		string(span.Status),
		span.UpdatedAt,
	}, nil
}

func scanSpans(rows *sql.Rows) ([]*models.Span, error) {
	defer rows.Close()
	var out []*models.Span
	for rows.Next() {
		var (
			sp                           models.Span
			spanID, tenantID, employeeID uuid.UUID
			checkInPunch                 uuid.UUID
			checkOutPunch                uuid.NullUUID
			checkOut                     sql.NullTime
			breaks                       []byte
			working, breakSecs, overtime int64
			status                       string
		)
		err := rows.Scan(
			&spanID, &tenantID, &employeeID, &sp.Date, &sp.CheckIn, &checkOut,
			&checkInPunch, &checkOutPunch, &breaks, &working, &breakSecs,
			&overtime, &sp.LateMinutes, &sp.EarlyMinutes, &status, &sp.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		if err := json.Unmarshal(breaks, &sp.Breaks); err != nil {
			return nil, fmt.Errorf("decode breaks: %w", err)
		}
		sp.ID = id.SpanID(spanID)
		sp.TenantID = id.TenantID(tenantID)
		sp.EmployeeID = id.EmployeeID(employeeID)
		sp.CheckInPunch = id.PunchID(checkInPunch)
		sp.Date = sp.Date.UTC()
		sp.CheckIn = sp.CheckIn.UTC()
		sp.UpdatedAt = sp.UpdatedAt.UTC()
		if checkOut.Valid {
			t := checkOut.Time.UTC()
			sp.CheckOut = &t
		}
		if checkOutPunch.Valid {
			p := id.PunchID(checkOutPunch.UUID)
			sp.CheckOutPunch = &p
		}
		sp.Working = time.Duration(working) * time.Second
		sp.BreakTime = time.Duration(breakSecs) * time.Second
		sp.Overtime = time.Duration(overtime) * time.Second
		sp.Status = models.Status(status)
		out = append(out, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}
	return out, nil
}

func nullableUUID(v *id.PunchID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
