// Package store persists anomaly signals and the sliding state the rules
// read: window counters, live sessions and last-known locations. Every key is
// scoped by tenant.
package store

import (
	"context"
	"slices"
	"sync"

	"timekeep/internal/anomaly/models"
	id "timekeep/pkg/domain"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
)

type InMemorySignals struct {
	mu      sync.RWMutex
	signals map[id.TenantID]map[id.SignalID]*models.Signal
	dedup   map[string]id.SignalID
}

func NewInMemorySignals() *InMemorySignals {
	return &InMemorySignals{
		signals: make(map[id.TenantID]map[id.SignalID]*models.Signal),
		dedup:   make(map[string]id.SignalID),
	}
}

// CreateIfAbsent inserts sig unless its dedup key is taken.
func (s *InMemorySignals) CreateIfAbsent(_ context.Context, sig *models.Signal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[sig.DedupKey]; ok {
		return false, nil
	}
	byID, ok := s.signals[sig.TenantID]
	if !ok {
		byID = make(map[id.SignalID]*models.Signal)
		s.signals[sig.TenantID] = byID
	}
	cp := *sig
	byID[sig.ID] = &cp
	s.dedup[sig.DedupKey] = sig.ID
	return true, nil
}

func (s *InMemorySignals) Get(_ context.Context, tenantID id.TenantID, signalID id.SignalID) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[tenantID][signalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *sig
	return &cp, nil
}

// Update stores the lifecycle fields of sig.
func (s *InMemorySignals) Update(ctx context.Context, sig *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.signals[sig.TenantID][sig.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	prevStatus, prevUpdated := cur.Status, cur.UpdatedAt
	cur.Status = sig.Status
	cur.UpdatedAt = sig.UpdatedAt
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur.Status = prevStatus
		cur.UpdatedAt = prevUpdated
	})
	return nil
}

// List returns matching signals, newest first.
func (s *InMemorySignals) List(_ context.Context, q models.Query) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Signal
	for _, sig := range s.signals[q.TenantID] {
		if q.Status != "" && sig.Status != q.Status {
			continue
		}
		if q.Type != "" && sig.Type != q.Type {
			continue
		}
		cp := *sig
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Signal) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
