package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"timekeep/internal/audit/models"
	"timekeep/internal/platform/postgres"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// PostgresStore persists entries in audit_entries. It exposes no UPDATE or
// DELETE path other than clearing the verified flag.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, e *models.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if e.Details == nil {
		details = []byte("{}")
	}
	var refersTo *uuid.UUID
	if e.RefersTo != nil {
		ref := uuid.UUID(*e.RefersTo)
		refersTo = &ref
	}

	query := `
		INSERT INTO audit_entries (
			id, tenant_id, occurred_at, actor, action, entity_type, entity_id,
			refers_to, details, client_ip, user_agent, checksum, verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.TenantID),
		models.Truncate(e.Timestamp),
		e.Actor,
		string(e.Action),
		string(e.EntityType),
		e.EntityID,
		refersTo,
		details,
		e.ClientIP,
		e.UserAgent,
		e.Checksum,
		e.Verified,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, tenant_id, occurred_at, actor, action, entity_type, entity_id,
	       refers_to, details, client_ip, user_agent, checksum, verified
	FROM audit_entries`

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(entryID))
	if err != nil {
		return nil, fmt.Errorf("query audit entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries[0], nil
}

func (s *PostgresStore) MarkUnverified(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE audit_entries SET verified = FALSE WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(entryID))
	if err != nil {
		return fmt.Errorf("mark audit entry unverified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark audit entry unverified: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q models.Query) ([]*models.Entry, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{uuid.UUID(q.TenantID)}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.Actor != "" {
		where = append(where, "actor = "+arg(q.Actor))
	}
	if !q.From.IsZero() {
		where = append(where, "occurred_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "occurred_at < "+arg(q.To))
	}
	if len(q.Actions) > 0 {
		actions := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			actions[i] = string(a)
		}
		where = append(where, "action = ANY("+arg(pq.Array(actions))+")")
	}

	query := selectColumns + " WHERE " + strings.Join(where, " AND ") + " ORDER BY seq"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		query += " OFFSET " + arg(q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*models.Entry, error) {
	var entries []*models.Entry
	for rows.Next() {
		var (
			e        models.Entry
			entryID  uuid.UUID
			tenantID uuid.UUID
			refersTo *uuid.UUID
			action   string
			entity   string
			details  []byte
		)
		err := rows.Scan(
			&entryID,
			&tenantID,
			&e.Timestamp,
			&e.Actor,
			&action,
			&entity,
			&e.EntityID,
			&refersTo,
			&details,
			&e.ClientIP,
			&e.UserAgent,
			&e.Checksum,
			&e.Verified,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.TenantID = id.TenantID(tenantID)
		e.Timestamp = e.Timestamp.UTC()
		e.Action = models.Action(action)
		e.EntityType = models.EntityType(entity)
		if refersTo != nil {
			ref := id.EntryID(*refersTo)
			e.RefersTo = &ref
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
			if len(e.Details) == 0 {
				e.Details = nil
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
