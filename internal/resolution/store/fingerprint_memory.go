// Package store holds the dedup fingerprint stores.
package store

import (
	"context"
	"sync"
	"time"

	id "timekeep/pkg/domain"
)

type fingerprintKey struct {
	tenant      id.TenantID
	fingerprint string
}

// InMemoryFingerprints is a single-process fingerprint set with expiry.
type InMemoryFingerprints struct {
	mu      sync.Mutex
	entries map[fingerprintKey]time.Time
	now     func() time.Time
}

func NewInMemoryFingerprints() *InMemoryFingerprints {
	return &InMemoryFingerprints{
		entries: make(map[fingerprintKey]time.Time),
		now:     time.Now,
	}
}

// WithClock is for tests.
func (s *InMemoryFingerprints) WithClock(now func() time.Time) *InMemoryFingerprints {
	s.now = now
	return s
}

// Claim records fingerprint unless a live record exists. True means the
// caller is the first to see it.
func (s *InMemoryFingerprints) Claim(_ context.Context, tenantID id.TenantID, fingerprint string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fingerprintKey{tenant: tenantID, fingerprint: fingerprint}
	now := s.now()
	if expires, ok := s.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	if len(s.entries)%1024 == 0 {
		s.evictExpired(now)
	}
	return true, nil
}

// Release forgets fingerprint so a retried submission is processed again.
func (s *InMemoryFingerprints) Release(_ context.Context, tenantID id.TenantID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprintKey{tenant: tenantID, fingerprint: fingerprint})
	return nil
}

func (s *InMemoryFingerprints) evictExpired(now time.Time) {
	for k, expires := range s.entries {
		if !now.Before(expires) {
			delete(s.entries, k)
		}
	}
}
