package store

import (
	"context"
	"slices"
	"sync"

	"timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// InMemoryStore keeps entries per tenant in append order. Stored values are
// copies truncated to storage precision, so reads behave like a database
// round-trip.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.TenantID][]*models.Entry
	index   map[id.EntryID]*models.Entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[id.TenantID][]*models.Entry),
		index:   make(map[id.EntryID]*models.Entry),
	}
}

// Append stores a copy of entry. Inside a transaction that later fails the
// entry is withdrawn, as a database rollback would.
func (s *InMemoryStore) Append(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[entry.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := entry.Clone()
	stored.Timestamp = models.Truncate(stored.Timestamp)
	s.entries[entry.TenantID] = append(s.entries[entry.TenantID], stored)
	s.index[entry.ID] = stored
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.index, entry.ID)
		s.entries[entry.TenantID] = slices.DeleteFunc(s.entries[entry.TenantID], func(e *models.Entry) bool {
			return e.ID == entry.ID
		})
	})
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[entryID]
	if !ok || e.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) MarkUnverified(_ context.Context, tenantID id.TenantID, entryID id.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[entryID]
	if !ok || e.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	e.Verified = false
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, q models.Query) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Entry
	skipped := 0
	for _, e := range s.entries[q.TenantID] {
		if !matches(e, q) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, e.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Tamper overwrites a stored field behind the logger's back. Tests use it to
// simulate out-of-band modification of the underlying storage.
func (s *InMemoryStore) Tamper(entryID id.EntryID, fn func(*models.Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.index[entryID]; ok {
		fn(e)
	}
}

func matches(e *models.Entry, q models.Query) bool {
	if q.Actor != "" && e.Actor != q.Actor {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.Timestamp.Before(q.To) {
		return false
	}
	if len(q.Actions) > 0 && !slices.Contains(q.Actions, e.Action) {
		return false
	}
	return true
}
