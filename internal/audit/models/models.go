// Package models defines audit entries and their canonical checksum.
package models

import (
	"time"

	id "timekeep/pkg/domain"
)

// Action names a mutating operation. Punch outcomes are recorded by the
// ingestion path; the rest arrive from platform services.
type Action string

const (
	ActionPunchProcessed Action = "punch.processed"
	ActionPunchDuplicate Action = "punch.duplicate"
	ActionPunchPending   Action = "punch.pending"
	ActionPunchFailed    Action = "punch.failed"
	ActionPunchIgnored   Action = "punch.ignored"
	ActionPunchResolved  Action = "punch.resolved"

	ActionAttendanceIncomplete Action = "attendance.incomplete"
	ActionAttendanceCorrected  Action = "attendance.corrected"

	ActionAlertStatusChanged Action = "alert.status_changed"

	ActionLoginSucceeded Action = "login.succeeded"
	ActionLoginFailed    Action = "login.failed"
	ActionSessionStarted Action = "session.started"
	ActionSessionEnded   Action = "session.ended"
	ActionDataExported   Action = "data.exported"
	ActionRecordViewed   Action = "record.viewed"
	ActionSalaryChanged  Action = "salary.changed"
	ActionAdminAction    Action = "admin.action"
)

// EntityType names what an entry is about.
type EntityType string

const (
	EntityPunch    EntityType = "punch"
	EntitySpan     EntityType = "attendance_span"
	EntitySignal   EntityType = "anomaly_signal"
	EntityAccount  EntityType = "account"
	EntityEmployee EntityType = "employee"
	EntityReport   EntityType = "report"
	EntitySession  EntityType = "session"
)

// Detail keys written by producers and read by the anomaly rules.
const (
	DetailLatitude   = "latitude"
	DetailLongitude  = "longitude"
	DetailRows       = "rows"
	DetailOldAmount  = "old_amount"
	DetailNewAmount  = "new_amount"
	DetailSessionID  = "session_id"
	DetailEmployeeID = "employee_id"
	DetailSpanID     = "span_id"
	DetailReason     = "reason"
	DetailStatus     = "status"
	DetailPunchType  = "punch_type"
	DetailPunchTime  = "punch_time"
	DetailDevice     = "device_serial"
	DetailErrorCode  = "error_code"
	DetailWarnings   = "warnings"
	DetailPrevious   = "previous_status"
	DetailSignalType = "signal_type"
	DetailSeverity   = "severity"
)

// Entry is an immutable audit record. Only Verified may change after the
// entry is written, and only from true to false.
type Entry struct {
	ID         id.EntryID        `json:"id"`
	TenantID   id.TenantID       `json:"tenant_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      string            `json:"actor"`
	Action     Action            `json:"action"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	RefersTo   *id.EntryID       `json:"refers_to,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Checksum   string            `json:"checksum"`
	Verified   bool              `json:"verified"`
}

// Record is what callers supply to append an entry. Actor, client IP and user
// agent fall back to the request context when empty.
type Record struct {
	TenantID   id.TenantID
	Actor      string
	Action     Action
	EntityType EntityType
	EntityID   string
	RefersTo   *id.EntryID
	Details    map[string]string
}

// Query filters the trail. TenantID is mandatory.
type Query struct {
	TenantID id.TenantID
	Actor    string
	From     time.Time
	To       time.Time
	Actions  []Action
	Limit    int
	Offset   int
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// VerifyReport summarizes a batch verification sweep.
type VerifyReport struct {
	Checked  int          `json:"checked"`
	Failed   int          `json:"failed"`
	Failures []id.EntryID `json:"failures"`
}

// Clone returns a deep copy so stores never share maps with callers.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.RefersTo != nil {
		ref := *e.RefersTo
		cp.RefersTo = &ref
	}
	if e.Details != nil {
		cp.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}
