package models

import (
	"time"

	dErrors "timekeep/pkg/domain-errors"
)

// Result is the structured outcome returned for every capture request.
// Success is false for validation failures, sequence violations and
// dependency failures; warnings never flip it.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	PunchID  string         `json:"punch_id,omitempty"`
	SpanID   string         `json:"span_id,omitempty"`
	Status   Status         `json:"status,omitempty"`
	Warnings []dErrors.Code `json:"warnings"`
	Errors   []FieldError   `json:"errors"`
}

// BatchResponse wraps per-item results in submission order.
type BatchResponse struct {
	Results  []*Result `json:"results"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
}

// Rejected builds a failed result carrying a single coded error.
func Rejected(code dErrors.Code, message string) *Result {
	return &Result{
		Success:  false,
		Message:  message,
		Warnings: []dErrors.Code{},
		Errors:   []FieldError{{Code: code, Message: message}},
	}
}

// Notification is the realtime payload for a captured punch.
type Notification struct {
	PunchID      string    `json:"punch_id"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	SpanID       string    `json:"span_id,omitempty"`
	DeviceSerial string    `json:"device_serial"`
	PunchType    Type      `json:"punch_type"`
	PunchTime    time.Time `json:"punch_time"`
	Status       Status    `json:"status"`
}

// PendingResponse lists punches awaiting manual resolution.
type PendingResponse struct {
	Punches []*Resolved `json:"punches"`
	Count   int         `json:"count"`
}

// ResolveRequest assigns an employee to a pending punch.
type ResolveRequest struct {
	EmployeeID string `json:"employee_id"`
}
