package models

import (
	"strings"

	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
)

// externalActions are the actions platform services may append. Punch and
// attendance outcomes are written only by the ingestion path.
var externalActions = map[Action]EntityType{
	ActionLoginSucceeded: EntityAccount,
	ActionLoginFailed:    EntityAccount,
	ActionSessionStarted: EntitySession,
	ActionSessionEnded:   EntitySession,
	ActionDataExported:   EntityReport,
	ActionRecordViewed:   EntityEmployee,
	ActionSalaryChanged:  EntityEmployee,
	ActionAdminAction:    "",
}

// IsExternal reports whether platform services may append a.
func (a Action) IsExternal() bool {
	_, ok := externalActions[a]
	return ok
}

// AppendRequest is the body of POST /v1/audit/entries.
type AppendRequest struct {
	Action     Action            `json:"action"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	RefersTo   *id.EntryID       `json:"refers_to,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Normalize fills the default entity type for the action.
func (r *AppendRequest) Normalize() {
	r.EntityID = strings.TrimSpace(r.EntityID)
	if r.EntityType == "" {
		r.EntityType = externalActions[r.Action]
	}
}

func (r *AppendRequest) Validate() error {
	switch {
	case r.Action == "":
		return dErrors.New(dErrors.CodeValidation, "action is required")
	case !r.Action.IsExternal():
		return dErrors.New(dErrors.CodeValidation, "action is not accepted from platform services")
	case r.EntityType == "":
		return dErrors.New(dErrors.CodeValidation, "entity_type is required")
	case r.EntityID == "":
		return dErrors.New(dErrors.CodeValidation, "entity_id is required")
	case len(r.Details) > 32:
		return dErrors.New(dErrors.CodeValidation, "too many details")
	}
	return nil
}

// Record binds the request to the caller's tenant.
func (r *AppendRequest) Record(tenantID id.TenantID) Record {
	return Record{
		TenantID:   tenantID,
		Action:     r.Action,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		RefersTo:   r.RefersTo,
		Details:    r.Details,
	}
}

// VerifyResponse reports one entry's verification.
type VerifyResponse struct {
	EntryID  id.EntryID `json:"entry_id"`
	Verified bool       `json:"verified"`
}

// EntriesResponse is a page of the trail.
type EntriesResponse struct {
	Entries []*Entry `json:"entries"`
	Count   int      `json:"count"`
}
