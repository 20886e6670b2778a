// Package domain holds the typed identifiers shared across the pipeline.
//
// Every identifier is a distinct named type over uuid.UUID so a TenantID can
// never be passed where an EmployeeID is expected.
package domain

import (
	"strings"

	dErrors "timekeep/pkg/domain-errors"

	"github.com/google/uuid"
)

type (
	TenantID   uuid.UUID
	EmployeeID uuid.UUID
	PunchID    uuid.UUID
	SpanID     uuid.UUID
	EntryID    uuid.UUID
	SignalID   uuid.UUID
)

// maxIDLength bounds input before uuid.Parse sees it.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is malformed")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is malformed")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant_id", s)
	return TenantID(u), err
}

func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID("employee_id", s)
	return EmployeeID(u), err
}

func ParsePunchID(s string) (PunchID, error) {
	u, err := parseUUID("punch_id", s)
	return PunchID(u), err
}

func ParseSpanID(s string) (SpanID, error) {
	u, err := parseUUID("span_id", s)
	return SpanID(u), err
}

func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID("entry_id", s)
	return EntryID(u), err
}

func ParseSignalID(s string) (SignalID, error) {
	u, err := parseUUID("signal_id", s)
	return SignalID(u), err
}

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id EmployeeID) String() string { return uuid.UUID(id).String() }
func (id PunchID) String() string    { return uuid.UUID(id).String() }
func (id SpanID) String() string     { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }
func (id SignalID) String() string   { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EmployeeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PunchID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SpanID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SignalID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func NewPunchID() PunchID   { return PunchID(uuid.New()) }
func NewSpanID() SpanID     { return SpanID(uuid.New()) }
func NewEntryID() EntryID   { return EntryID(uuid.New()) }
func NewSignalID() SignalID { return SignalID(uuid.New()) }

// Text marshaling keeps IDs as canonical strings in JSON and YAML.

func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id EmployeeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id PunchID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id SpanID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id SignalID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseTenantID(string(b))
	return err
}

func (id *EmployeeID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseEmployeeID(string(b))
	return err
}

func (id *PunchID) UnmarshalText(b []byte) (err error) {
	*id, err = ParsePunchID(string(b))
	return err
}

func (id *SpanID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseSpanID(string(b))
	return err
}

func (id *EntryID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseEntryID(string(b))
	return err
}

func (id *SignalID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseSignalID(string(b))
	return err
}
