package models

import (
	"strings"

	dErrors "timekeep/pkg/domain-errors"
)

// TransitionRequest moves a signal to a new lifecycle status.
type TransitionRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (r *TransitionRequest) Normalize() {
	r.Status = Status(strings.ToLower(strings.TrimSpace(string(r.Status))))
	r.Note = strings.TrimSpace(r.Note)
}

func (r *TransitionRequest) Validate() error {
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown signal status")
	}
	if len(r.Note) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "note is too long")
	}
	return nil
}

// SignalsResponse lists signals.
type SignalsResponse struct {
	Signals []*Signal `json:"signals"`
	Count   int       `json:"count"`
}
