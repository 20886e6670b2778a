// Package store persists attendance spans.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"timekeep/internal/attendance/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

// InMemoryStore keeps spans per tenant. At most one checked_in span exists per
// employee and work date, matching the partial unique index of the PostgreSQL
// schema. Writes made inside a transaction are undone if it fails.
type InMemoryStore struct {
	mu    sync.RWMutex
	spans map[id.TenantID]map[id.SpanID]*models.Span
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{spans: make(map[id.TenantID]map[id.SpanID]*models.Span)}
}

// FindOpen returns the employee's checked_in span for date or
// sentinel.ErrNotFound.
func (s *InMemoryStore) FindOpen(_ context.Context, tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) (*models.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sp := s.open(tenantID, employeeID, date); sp != nil {
		return sp.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) open(tenantID id.TenantID, employeeID id.EmployeeID, date time.Time) *models.Span {
	for _, sp := range s.spans[tenantID] {
		if sp.EmployeeID == employeeID && sp.Status.IsOpen() && sameDay(sp.Date, date) {
			return sp
		}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format(time.DateOnly) == b.UTC().Format(time.DateOnly)
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, spanID id.SpanID) (*models.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spans[tenantID][spanID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sp.Clone(), nil
}

// Create inserts a new span. A second open span for the same employee and
// date is rejected with sentinel.ErrConflict.
func (s *InMemoryStore) Create(ctx context.Context, span *models.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.spans[span.TenantID]
	if !ok {
		byID = make(map[id.SpanID]*models.Span)
		s.spans[span.TenantID] = byID
	}
	if _, exists := byID[span.ID]; exists {
		return sentinel.ErrConflict
	}
	if span.Status.IsOpen() && s.open(span.TenantID, span.EmployeeID, span.Date) != nil {
		return sentinel.ErrConflict
	}
	byID[span.ID] = span.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.spans[span.TenantID], span.ID)
	})
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, span *models.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.spans[span.TenantID][span.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if span.Status.IsOpen() && !prev.Status.IsOpen() {
		if other := s.open(span.TenantID, span.EmployeeID, span.Date); other != nil {
			return sentinel.ErrConflict
		}
	}
	s.spans[span.TenantID][span.ID] = span.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.spans[span.TenantID][span.ID] = prev
	})
	return nil
}

// ListOpen returns spans still checked in whose work date is on or before date.
func (s *InMemoryStore) ListOpen(_ context.Context, tenantID id.TenantID, date time.Time) ([]*models.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Span
	for _, sp := range s.spans[tenantID] {
		if sp.Status.IsOpen() && !sp.Date.After(date) {
			out = append(out, sp.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Span) int {
		return a.CheckIn.Compare(b.CheckIn)
	})
	return out, nil
}
