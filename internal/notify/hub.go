package notify

import (
	"sync"

	id "timekeep/pkg/domain"
)

const defaultSubscriberBuffer = 64

// Hub fans events out to in-process subscribers grouped by tenant. A
// subscriber only ever sees its own tenant's events.
type Hub struct {
	buffer  int
	metrics *Metrics

	mu     sync.RWMutex
	groups map[id.TenantID]map[*Subscription]struct{}
}

// Subscription is one realtime listener.
type Subscription struct {
	hub    *Hub
	tenant id.TenantID
	ch     chan Event
	once   sync.Once
}

// C delivers the subscriber's events. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close leaves the tenant group. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func NewHub(buffer int, metrics *Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		buffer:  buffer,
		metrics: metrics,
		groups:  make(map[id.TenantID]map[*Subscription]struct{}),
	}
}

// Subscribe joins tenantID's group.
func (h *Hub) Subscribe(tenantID id.TenantID) *Subscription {
	sub := &Subscription{hub: h, tenant: tenantID, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	group, ok := h.groups[tenantID]
	if !ok {
		group = make(map[*Subscription]struct{})
		h.groups[tenantID] = group
	}
	group[sub] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	group := h.groups[sub.tenant]
	delete(group, sub)
	if len(group) == 0 {
		delete(h.groups, sub.tenant)
	}
	// closing under the write lock keeps Broadcast from sending on it
	close(sub.ch)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// Broadcast offers ev to every subscriber of its tenant without blocking.
// A subscriber whose buffer is full misses the event.
func (h *Hub) Broadcast(ev Event) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.groups[ev.TenantID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 && h.metrics != nil {
		h.metrics.Dropped.WithLabelValues(string(ev.Type)).Add(float64(dropped))
	}
	return delivered, dropped
}

// Subscribers is the number of listeners in tenantID's group.
func (h *Hub) Subscribers(tenantID id.TenantID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[tenantID])
}

// Close ends every subscription, telling realtime connections to go away.
func (h *Hub) Close() {
	h.mu.RLock()
	var subs []*Subscription
	for _, group := range h.groups {
		for sub := range group {
			subs = append(subs, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		sub.Close()
	}
}
