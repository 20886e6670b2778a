package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
)

func newEntry(tenant id.TenantID, at time.Time, action models.Action) *models.Entry {
	e := &models.Entry{
		ID:         id.NewEntryID(),
		TenantID:   tenant,
		Timestamp:  at,
		Actor:      "device:ZK-001",
		Action:     action,
		EntityType: models.EntityPunch,
		EntityID:   uuid.NewString(),
		Details:    map[string]string{"k": "v"},
		Verified:   true,
	}
	e.Checksum = e.ComputeChecksum()
	return e
}

func TestInMemoryAppend(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	tenant := id.TenantID(uuid.New())
	at := time.Date(2026, 3, 2, 9, 0, 0, 999, time.UTC)

	e := newEntry(tenant, at, models.ActionPunchProcessed)
	require.NoError(t, s.Append(ctx, e))

	t.Run("duplicate id conflicts", func(t *testing.T) {
		assert.ErrorIs(t, s.Append(ctx, e), sentinel.ErrConflict)
	})

	t.Run("stored copy is isolated from the caller", func(t *testing.T) {
		e.Details["k"] = "changed"
		got, err := s.Get(ctx, tenant, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "v", got.Details["k"])
		assert.Equal(t, 0, got.Timestamp.Nanosecond()%1000)
	})

	t.Run("get is tenant scoped", func(t *testing.T) {
		_, err := s.Get(ctx, id.TenantID(uuid.New()), e.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryMarkUnverified(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	tenant := id.TenantID(uuid.New())
	e := newEntry(tenant, time.Now(), models.ActionPunchProcessed)
	require.NoError(t, s.Append(ctx, e))

	require.NoError(t, s.MarkUnverified(ctx, tenant, e.ID))
	got, err := s.Get(ctx, tenant, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified)
	assert.Equal(t, e.Checksum, got.Checksum)

	assert.ErrorIs(t, s.MarkUnverified(ctx, tenant, id.NewEntryID()), sentinel.ErrNotFound)
}

func TestInMemoryQuery(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	tenant := id.TenantID(uuid.New())
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		action := models.ActionPunchProcessed
		if i%2 == 1 {
			action = models.ActionLoginFailed
		}
		require.NoError(t, s.Append(ctx, newEntry(tenant, base.Add(time.Duration(i)*time.Minute), action)))
	}

	tests := []struct {
		name  string
		query models.Query
		want  int
	}{
		{"all", models.Query{TenantID: tenant}, 5},
		{"action filter", models.Query{TenantID: tenant, Actions: []models.Action{models.ActionLoginFailed}}, 2},
		{"from inclusive", models.Query{TenantID: tenant, From: base.Add(2 * time.Minute)}, 3},
		{"to exclusive", models.Query{TenantID: tenant, To: base.Add(2 * time.Minute)}, 2},
		{"limit", models.Query{TenantID: tenant, Limit: 2}, 2},
		{"offset past end", models.Query{TenantID: tenant, Offset: 10}, 0},
		{"other tenant", models.Query{TenantID: id.TenantID(uuid.New())}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	t.Run("results are in append order", func(t *testing.T) {
		got, err := s.Query(ctx, models.Query{TenantID: tenant, Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, base.Add(time.Minute), got[0].Timestamp)
		assert.Equal(t, base.Add(2*time.Minute), got[1].Timestamp)
	})
}
