package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// PostgresStore persists resolved punches in the punches table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const punchColumns = `id, tenant_id, device_serial, device_user_id, punch_type, punch_time,
	verification, quality, latitude, longitude, raw_payload, employee_id, span_id,
	status, fingerprint, warnings, received_at`

func (s *PostgresStore) Save(ctx context.Context, p *models.Resolved) error {
	var lat, lon sql.NullFloat64
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: p.Location.Longitude, Valid: true}
	}
	warnings := make([]string, len(p.Warnings))
	for i, w := range p.Warnings {
		warnings[i] = string(w)
	}

	query := `
		INSERT INTO punches (` + punchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			span_id = EXCLUDED.span_id,
			status = EXCLUDED.status,
			warnings = EXCLUDED.warnings
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID),
		uuid.UUID(p.TenantID),
		p.DeviceSerial,
		p.DeviceUserID,
		string(p.Type),
		p.PunchTime,
		p.VerificationMethod,
		p.Quality,
		lat,
		lon,
		p.RawPayload,
		nullableUUID(p.EmployeeID),
		nullableUUID(p.SpanID),
		string(p.Status),
		p.Fingerprint,
		pq.Array(warnings),
		p.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("save punch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, punchID id.PunchID) (*models.Resolved, error) {
	query := `SELECT ` + punchColumns + ` FROM punches WHERE tenant_id = $1 AND id = $2`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(punchID))
	if err != nil {
		return nil, fmt.Errorf("get punch: %w", err)
	}
	punches, err := scanPunches(rows)
	if err != nil {
		return nil, err
	}
	if len(punches) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return punches[0], nil
}

func (s *PostgresStore) ListPending(ctx context.Context, tenantID id.TenantID, limit int) ([]*models.Resolved, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + punchColumns + ` FROM punches
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY punch_time
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending punches: %w", err)
	}
	return scanPunches(rows)
}

func scanPunches(rows *sql.Rows) ([]*models.Resolved, error) {
	defer rows.Close()
	var out []*models.Resolved
	for rows.Next() {
		var (
			p                  models.Resolved
			punchID, tenantID  uuid.UUID
			employeeID, spanID uuid.NullUUID
			lat, lon           sql.NullFloat64
			punchType, status  string
			warnings           []string
		)
		err := rows.Scan(
			&punchID, &tenantID, &p.DeviceSerial, &p.DeviceUserID, &punchType, &p.PunchTime,
			&p.VerificationMethod, &p.Quality, &lat, &lon, &p.RawPayload, &employeeID, &spanID,
			&status, &p.Fingerprint, pq.Array(&warnings), &p.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan punch: %w", err)
		}
		p.ID = id.PunchID(punchID)
		p.TenantID = id.TenantID(tenantID)
		p.Type = models.Type(punchType)
		p.Status = models.Status(status)
		p.PunchTime = p.PunchTime.UTC()
		p.ReceivedAt = p.ReceivedAt.UTC()
		if lat.Valid && lon.Valid {
			p.Location = &models.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		if employeeID.Valid {
			e := id.EmployeeID(employeeID.UUID)
			p.EmployeeID = &e
		}
		if spanID.Valid {
			sp := id.SpanID(spanID.UUID)
			p.SpanID = &sp
		}
		for _, w := range warnings {
			p.Warnings = append(p.Warnings, dErrors.Code(w))
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate punches: %w", err)
	}
	return out, nil
}

type uuidLike interface {
	~[16]byte
}

func nullableUUID[T uuidLike](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
