package models

import (
	"strings"
	"time"

	dErrors "timekeep/pkg/domain-errors"
)

// CaptureRequest is the inbound punch payload from a device or its bridge.
type CaptureRequest struct {
	DeviceSerial       string    `json:"device_serial"`
	DeviceUserID       string    `json:"device_user_id"`
	PunchTime          time.Time `json:"punch_time"`
	PunchType          Type      `json:"punch_type"`
	VerificationMethod string    `json:"verification_method,omitempty"`
	Quality            int       `json:"quality"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
	Photo              string    `json:"photo,omitempty"`
	RawPayload         []byte    `json:"raw_payload,omitempty"`
}

// BatchRequest carries several captures from one device sync.
type BatchRequest struct {
	Punches []CaptureRequest `json:"punches"`
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string       `json:"field"`
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

const (
	maxSerialLength = 64
	maxUserIDLength = 64
)

// Normalize trims identifiers in place.
func (r *CaptureRequest) Normalize() {
	r.DeviceSerial = strings.TrimSpace(r.DeviceSerial)
	r.DeviceUserID = strings.TrimSpace(r.DeviceUserID)
	r.VerificationMethod = strings.ToLower(strings.TrimSpace(r.VerificationMethod))
}

// Validate returns every problem with the request; an empty slice means valid.
func (r *CaptureRequest) Validate() []FieldError {
	var errs []FieldError
	add := func(field, message string) {
		errs = append(errs, FieldError{Field: field, Code: dErrors.CodeValidation, Message: message})
	}

	switch {
	case r.DeviceSerial == "":
		add("device_serial", "device serial is required")
	case len(r.DeviceSerial) > maxSerialLength:
		add("device_serial", "device serial is too long")
	}
	switch {
	case r.DeviceUserID == "":
		add("device_user_id", "device user id is required")
	case len(r.DeviceUserID) > maxUserIDLength:
		add("device_user_id", "device user id is too long")
	}
	if r.PunchTime.IsZero() {
		add("punch_time", "punch time is required")
	}
	if !r.PunchType.IsValid() {
		add("punch_type", "punch type must be one of check_in, check_out, break_start, break_end")
	}
	if r.Quality < 0 || r.Quality > 100 {
		add("quality", "quality must be between 0 and 100")
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		add("location", "latitude and longitude must be provided together")
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		add("latitude", "latitude must be between -90 and 90")
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		add("longitude", "longitude must be between -180 and 180")
	}
	return errs
}
