// Package models holds the punch types shared by ingestion, resolution and the
// attendance state builder.
package models

import (
	"time"

	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
)

// Type is the kind of time event a device captured.
type Type string

const (
	TypeCheckIn    Type = "check_in"
	TypeCheckOut   Type = "check_out"
	TypeBreakStart Type = "break_start"
	TypeBreakEnd   Type = "break_end"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeCheckIn, TypeCheckOut, TypeBreakStart, TypeBreakEnd:
		return true
	}
	return false
}

// Status is the processing state of a resolved punch. Pending is the only
// non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
	StatusIgnored   Status = "ignored"
)

func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Location is an optional geo fix attached to a punch.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Event is a normalized device punch.
type Event struct {
	ID                 id.PunchID  `json:"id"`
	TenantID           id.TenantID `json:"tenant_id"`
	DeviceSerial       string      `json:"device_serial"`
	DeviceUserID       string      `json:"device_user_id"`
	PunchTime          time.Time   `json:"punch_time"`
	Type               Type        `json:"punch_type"`
	VerificationMethod string      `json:"verification_method,omitempty"`
	Quality            int         `json:"quality"`
	Location           *Location   `json:"location,omitempty"`
	RawPayload         []byte      `json:"-"`
	ReceivedAt         time.Time   `json:"received_at"`
}

// Resolved is an Event after identity resolution and dedup.
type Resolved struct {
	Event
	EmployeeID  *id.EmployeeID `json:"employee_id,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	Status      Status         `json:"status"`
	SpanID      *id.SpanID     `json:"span_id,omitempty"`
	Warnings    []dErrors.Code `json:"warnings"`
}

// WorkDate is the calendar day (UTC) the punch belongs to.
func (e Event) WorkDate() time.Time {
	t := e.PunchTime.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddWarning appends code once.
func (r *Resolved) AddWarning(code dErrors.Code) {
	for _, w := range r.Warnings {
		if w == code {
			return
		}
	}
	r.Warnings = append(r.Warnings, code)
}
