package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Precision is the storage layer's native timestamp resolution (PostgreSQL
// timestamptz keeps microseconds).
const Precision = time.Microsecond

// Truncate normalizes t to UTC at Precision and drops any monotonic reading.
// Truncate(Truncate(t)) == Truncate(t).
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// canonicalEntry fixes the field order of the hashed representation.
type canonicalEntry struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	TenantID   string `json:"tenant_id"`
}

// Canonical returns the bytes the checksum is computed over. The timestamp is
// truncated here as well, so a value read back from storage hashes the same as
// the in-memory value it was written from.
func (e *Entry) Canonical() []byte {
	c := canonicalEntry{
		ID:         e.ID.String(),
		Timestamp:  Truncate(e.Timestamp).Format(time.RFC3339Nano),
		Actor:      e.Actor,
		Action:     string(e.Action),
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		TenantID:   e.TenantID.String(),
	}
	// Marshal of a struct of strings cannot fail.
	b, _ := json.Marshal(c)
	return b
}

// ComputeChecksum returns the hex SHA-256 of the canonical form.
func (e *Entry) ComputeChecksum() string {
	sum := sha256.Sum256(e.Canonical())
	return hex.EncodeToString(sum[:])
}

// ChecksumMatches recomputes and compares against the stored checksum.
func (e *Entry) ChecksumMatches() bool {
	return e.Checksum != "" && e.ComputeChecksum() == e.Checksum
}
