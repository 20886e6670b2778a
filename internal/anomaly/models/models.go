// Package models defines anomaly signals and their operator lifecycle.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	id "timekeep/pkg/domain"
)

// Type names the rule that produced a signal.
type Type string

const (
	TypeFailedLogin        Type = "failed_login_threshold"
	TypeMassExport         Type = "mass_export"
	TypeImpossibleTravel   Type = "impossible_travel"
	TypeConcurrentSessions Type = "concurrent_sessions"
	TypeAfterHours         Type = "after_hours_access"
	TypeSalaryChange       Type = "salary_change"
	TypeRapidAction        Type = "rapid_action"
	TypeTamperSuspected    Type = "tamper_suspected"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the operator lifecycle state. Signals are created New and only
// move through Transition.
type Status string

const (
	StatusNew           Status = "new"
	StatusAcknowledged  Status = "acknowledged"
	StatusInProgress    Status = "in_progress"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
	StatusEscalated     Status = "escalated"
	StatusClosed        Status = "closed"
)

var transitions = map[Status][]Status{
	StatusNew:           {StatusAcknowledged, StatusInProgress, StatusEscalated, StatusFalsePositive},
	StatusAcknowledged:  {StatusInProgress, StatusEscalated, StatusResolved, StatusFalsePositive},
	StatusInProgress:    {StatusEscalated, StatusResolved, StatusFalsePositive},
	StatusEscalated:     {StatusInProgress, StatusResolved, StatusFalsePositive},
	StatusResolved:      {StatusClosed},
	StatusFalsePositive: {StatusClosed},
}

func (s Status) IsValid() bool {
	if s == StatusClosed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an operator may move a signal from s to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Signal is a detected pattern with the evidence that crossed its threshold.
type Signal struct {
	ID        id.SignalID `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	Type      Type        `json:"type"`
	Severity  Severity    `json:"severity"`
	Subject   string      `json:"subject"`
	Metric    string      `json:"metric"`
	Threshold float64     `json:"threshold"`
	Actual    float64     `json:"actual"`
	EntryID   id.EntryID  `json:"entry_id"`
	DedupKey  string      `json:"dedup_key"`
	Message   string      `json:"message"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Finding is what a rule reports; the engine turns it into a Signal.
type Finding struct {
	Type      Type
	Severity  Severity
	Subject   string
	Metric    string
	Threshold float64
	Actual    float64
	Message   string
}

// DedupKey is stable for one entry and one rule, so re-evaluating an entry
// can never create a second signal.
func DedupKey(entryID id.EntryID, t Type) string {
	sum := sha256.Sum256([]byte(entryID.String() + "|" + string(t)))
	return hex.EncodeToString(sum[:])
}

// NewSignal stamps a finding for entryID.
func NewSignal(tenantID id.TenantID, entryID id.EntryID, f Finding, now time.Time) *Signal {
	return &Signal{
		ID:        id.NewSignalID(),
		TenantID:  tenantID,
		Type:      f.Type,
		Severity:  f.Severity,
		Subject:   f.Subject,
		Metric:    f.Metric,
		Threshold: f.Threshold,
		Actual:    f.Actual,
		EntryID:   entryID,
		DedupKey:  DedupKey(entryID, f.Type),
		Message:   f.Message,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Query filters signals for one tenant.
type Query struct {
	TenantID id.TenantID
	Status   Status
	Type     Type
	Limit    int
	Offset   int
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Location is a timestamped geo fix used by the travel rule.
type Location struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	At        time.Time `json:"at"`
}
