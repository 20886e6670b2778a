package store

import (
	"context"
	"sync"
	"time"

	"timekeep/internal/anomaly/models"
	id "timekeep/pkg/domain"
)

type windowKey struct {
	tenant id.TenantID
	key    string
}

type window struct {
	members map[string]time.Time
	latest  time.Time
}

// InMemoryWindows is a single-instance WindowStore.
type InMemoryWindows struct {
	mu      sync.Mutex
	windows map[windowKey]*window
	latches map[windowKey]time.Time
}

func NewInMemoryWindows() *InMemoryWindows {
	return &InMemoryWindows{
		windows: make(map[windowKey]*window),
		latches: make(map[windowKey]time.Time),
	}
}

// Latch opens an episode unless one is open at at, and extends it to at+hold.
func (s *InMemoryWindows) Latch(_ context.Context, tenantID id.TenantID, key string, at time.Time, hold time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := windowKey{tenant: tenantID, key: key}
	until, open := s.latches[k]
	open = open && until.After(at)
	if next := at.Add(hold); !open || next.After(until) {
		s.latches[k] = next
	}
	return !open, nil
}

// Record adds member at and returns how many members fall in (at-width, at].
func (s *InMemoryWindows) Record(_ context.Context, tenantID id.TenantID, key, member string, at time.Time, width time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := windowKey{tenant: tenantID, key: key}
	w, ok := s.windows[k]
	if !ok {
		w = &window{members: make(map[string]time.Time)}
		s.windows[k] = w
	}
	if _, seen := w.members[member]; !seen {
		w.members[member] = at
	}
	if at.After(w.latest) {
		w.latest = at
	}

	cutoff := w.latest.Add(-width)
	from := at.Add(-width)
	count := 0
	for m, t := range w.members {
		if !t.After(cutoff) {
			delete(w.members, m)
			continue
		}
		if t.After(from) && !t.After(at) {
			count++
		}
	}
	return count, nil
}

type subjectKey struct {
	tenant  id.TenantID
	subject string
}

// InMemorySessions is a single-instance SessionRegistry. Sessions expire
// after their TTL even if the end event never arrives.
type InMemorySessions struct {
	mu       sync.Mutex
	sessions map[subjectKey]map[string]time.Time
}

func NewInMemorySessions() *InMemorySessions {
	return &InMemorySessions{sessions: make(map[subjectKey]map[string]time.Time)}
}

func (s *InMemorySessions) Start(_ context.Context, tenantID id.TenantID, subject, sessionID string, at time.Time, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{tenant: tenantID, subject: subject}
	live, ok := s.sessions[k]
	if !ok {
		live = make(map[string]time.Time)
		s.sessions[k] = live
	}
	for sid, expires := range live {
		if !expires.After(at) {
			delete(live, sid)
		}
	}
	live[sessionID] = at.Add(ttl)
	return len(live), nil
}

func (s *InMemorySessions) End(_ context.Context, tenantID id.TenantID, subject, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{tenant: tenantID, subject: subject}
	delete(s.sessions[k], sessionID)
	if len(s.sessions[k]) == 0 {
		delete(s.sessions, k)
	}
	return nil
}

// InMemoryLocations is a single-instance LocationStore.
type InMemoryLocations struct {
	mu     sync.Mutex
	latest map[subjectKey]models.Location
}

func NewInMemoryLocations() *InMemoryLocations {
	return &InMemoryLocations{latest: make(map[subjectKey]models.Location)}
}

func (s *InMemoryLocations) Swap(_ context.Context, tenantID id.TenantID, subject string, loc models.Location) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{tenant: tenantID, subject: subject}
	prev, ok := s.latest[k]
	if !ok || loc.At.After(prev.At) {
		s.latest[k] = loc
	}
	if !ok {
		return nil, nil
	}
	return &prev, nil
}
