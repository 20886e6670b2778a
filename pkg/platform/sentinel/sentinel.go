package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, queues and dependency
// wrappers return these (optionally wrapped) so services can translate them
// into domain errors.
//
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness constraint already holds the key
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: dependency temporarily unavailable (circuit open, retries exhausted)
// - ErrClosed: component has been shut down and accepts no more work
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)
