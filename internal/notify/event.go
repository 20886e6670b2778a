// Package notify fans pipeline events out to tenant-scoped realtime
// subscribers and the event stream. Delivery is best-effort: nothing here
// fails the business operation that produced the event.
package notify

import (
	"time"

	id "timekeep/pkg/domain"
)

// EventType names a realtime event.
type EventType string

const (
	EventNewPunch            EventType = "new_punch"
	EventAttendanceUpdated   EventType = "attendance_updated"
	EventDeviceStatusChanged EventType = "device_status_changed"
	EventAnomalyDetected     EventType = "anomaly_detected"
)

// Event is one notification. Payload is JSON-encoded as is.
type Event struct {
	Type       EventType   `json:"type"`
	TenantID   id.TenantID `json:"tenant_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    any         `json:"payload"`
}

// New builds an event stamped with at.
func New(t EventType, tenantID id.TenantID, at time.Time, payload any) Event {
	return Event{Type: t, TenantID: tenantID, OccurredAt: at.UTC(), Payload: payload}
}

// Sink accepts events without blocking; false means the event was dropped.
// A bounded queue of events satisfies it.
type Sink interface {
	TryEnqueue(e Event) bool
}

// Discard accepts and drops every event.
type Discard struct{}

func (Discard) TryEnqueue(Event) bool { return true }
