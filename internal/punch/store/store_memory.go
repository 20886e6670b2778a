package store

import (
	"context"
	"slices"
	"sync"

	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// InMemoryStore keeps resolved punches per tenant.
type InMemoryStore struct {
	mu      sync.RWMutex
	punches map[id.TenantID]map[id.PunchID]*models.Resolved
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{punches: make(map[id.TenantID]map[id.PunchID]*models.Resolved)}
}

// Save inserts or replaces the punch. A failed surrounding transaction
// restores the previous version.
func (s *InMemoryStore) Save(ctx context.Context, p *models.Resolved) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.punches[p.TenantID]
	if !ok {
		byID = make(map[id.PunchID]*models.Resolved)
		s.punches[p.TenantID] = byID
	}
	prev, existed := byID[p.ID]
	byID[p.ID] = clone(p)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.punches[p.TenantID][p.ID] = prev
			return
		}
		delete(s.punches[p.TenantID], p.ID)
	})
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, punchID id.PunchID) (*models.Resolved, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.punches[tenantID][punchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

// ListPending returns punches awaiting manual resolution, oldest first.
func (s *InMemoryStore) ListPending(_ context.Context, tenantID id.TenantID, limit int) ([]*models.Resolved, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Resolved
	for _, p := range s.punches[tenantID] {
		if p.Status == models.StatusPending {
			out = append(out, clone(p))
		}
	}
	slices.SortFunc(out, func(a, b *models.Resolved) int {
		return a.PunchTime.Compare(b.PunchTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(p *models.Resolved) *models.Resolved {
	c := *p
	c.Warnings = slices.Clone(p.Warnings)
	c.RawPayload = slices.Clone(p.RawPayload)
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	if p.EmployeeID != nil {
		e := *p.EmployeeID
		c.EmployeeID = &e
	}
	if p.SpanID != nil {
		sp := *p.SpanID
		c.SpanID = &sp
	}
	return &c
}
