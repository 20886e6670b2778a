// Package models holds the vendor-neutral shapes a device transport returns
// and their mapping onto punch captures.
package models

import (
	"fmt"
	"time"

	punchmodels "timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
)

// Info describes a connected terminal.
type Info struct {
	Serial       string `json:"serial"`
	Model        string `json:"model,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
	RecordCount  int    `json:"record_count"`
	UserCount    int    `json:"user_count,omitempty"`
	ClockSkewSec int    `json:"clock_skew_sec,omitempty"`
}

// PunchState is the terminal's attendance state code.
type PunchState int

const (
	StateCheckIn     PunchState = 0
	StateCheckOut    PunchState = 1
	StateBreakOut    PunchState = 2
	StateBreakIn     PunchState = 3
	StateOvertimeIn  PunchState = 4
	StateOvertimeOut PunchState = 5
)

// VerifyMode is how the terminal identified the user.
type VerifyMode int

const (
	VerifyPassword    VerifyMode = 0
	VerifyFingerprint VerifyMode = 1
	VerifyCard        VerifyMode = 2
	VerifyFace        VerifyMode = 15
	VerifyPalm        VerifyMode = 25
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyPassword:
		return "password"
	case VerifyFingerprint:
		return "fingerprint"
	case VerifyCard:
		return "card"
	case VerifyFace:
		return "face"
	case VerifyPalm:
		return "palm"
	default:
		return fmt.Sprintf("mode_%d", int(m))
	}
}

// Record is one attendance log line read from a terminal.
type Record struct {
	DeviceUserID string     `json:"user_id"`
	Timestamp    time.Time  `json:"timestamp"`
	State        PunchState `json:"state"`
	VerifyMode   VerifyMode `json:"verify_mode"`
	// Quality is the match score when the terminal reports one.
	Quality   *int     `json:"quality,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// defaultQuality stands in for terminals that accept or reject a match
// without reporting a score.
const defaultQuality = 100

// PunchType maps the state code. Unknown codes report false.
func (s PunchState) PunchType() (punchmodels.Type, bool) {
	switch s {
	case StateCheckIn, StateOvertimeIn:
		return punchmodels.TypeCheckIn, true
	case StateCheckOut, StateOvertimeOut:
		return punchmodels.TypeCheckOut, true
	case StateBreakOut:
		return punchmodels.TypeBreakStart, true
	case StateBreakIn:
		return punchmodels.TypeBreakEnd, true
	default:
		return "", false
	}
}

// Capture normalizes r into a punch submission from serial.
func (r Record) Capture(serial string) (punchmodels.CaptureRequest, error) {
	pt, ok := r.State.PunchType()
	if !ok {
		return punchmodels.CaptureRequest{}, fmt.Errorf("record for user %s: unknown state %d", r.DeviceUserID, r.State)
	}
	quality := defaultQuality
	if r.Quality != nil {
		quality = *r.Quality
	}
	return punchmodels.CaptureRequest{
		DeviceSerial:       serial,
		DeviceUserID:       r.DeviceUserID,
		PunchTime:          r.Timestamp,
		PunchType:          pt,
		VerificationMethod: r.VerifyMode.String(),
		Quality:            quality,
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
	}, nil
}

// Status is a terminal's reachability as last seen by the poller.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// StatusChange is the DeviceStatusChanged payload.
type StatusChange struct {
	TenantID  id.TenantID `json:"tenant_id"`
	Serial    string      `json:"device_serial"`
	Status    Status      `json:"status"`
	Previous  Status      `json:"previous_status,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Info      *Info       `json:"info,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

// PollResult summarizes one poll of one terminal.
type PollResult struct {
	Serial   string `json:"device_serial"`
	Fetched  int    `json:"fetched"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Skipped  int    `json:"skipped"`
	Cleared  bool   `json:"cleared"`
}
