package models

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "timekeep/pkg/domain"
)

func newEntry(ts time.Time) *Entry {
	e := &Entry{
		ID:         id.EntryID(uuid.New()),
		TenantID:   id.TenantID(uuid.New()),
		Timestamp:  ts,
		Actor:      "device:ZK-001",
		Action:     ActionPunchProcessed,
		EntityType: EntityPunch,
		EntityID:   uuid.NewString(),
	}
	e.Checksum = e.ComputeChecksum()
	return e
}

func TestTruncateIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	zones := []*time.Location{time.UTC, time.FixedZone("plus", 5*3600+1800), time.FixedZone("minus", -8*3600)}
	for i := 0; i < 2000; i++ {
		ts := time.Unix(r.Int63n(4_000_000_000), r.Int63n(1_000_000_000)).In(zones[i%len(zones)])
		once := Truncate(ts)
		assert.True(t, once.Equal(Truncate(once)), "not idempotent for %v", ts)
		assert.Equal(t, once, Truncate(once))
		assert.Zero(t, once.Nanosecond()%1000)
		assert.Equal(t, time.UTC, once.Location())
	}
}

func TestTruncateDropsMonotonicReading(t *testing.T) {
	now := time.Now()
	assert.Equal(t, Truncate(now).String(), Truncate(now.Round(0)).String())
}

func TestChecksumRoundTrip(t *testing.T) {
	t.Run("verifies immediately after creation", func(t *testing.T) {
		e := newEntry(time.Now())
		assert.True(t, e.ChecksumMatches())
	})

	t.Run("verifies after storage truncates precision", func(t *testing.T) {
		ts := time.Date(2026, 3, 2, 9, 2, 15, 123456789, time.FixedZone("x", 3600))
		e := newEntry(ts)

		persisted := e.Clone()
		persisted.Timestamp = ts.UTC().Truncate(time.Microsecond)
		assert.True(t, persisted.ChecksumMatches())
	})

	t.Run("timezone of the read value does not matter", func(t *testing.T) {
		ts := time.Date(2026, 3, 2, 9, 2, 15, 500, time.UTC)
		e := newEntry(ts)
		e.Timestamp = ts.In(time.FixedZone("y", -7*3600))
		assert.True(t, e.ChecksumMatches())
	})
}

func TestChecksumDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"actor", func(e *Entry) { e.Actor = "someone-else" }},
		{"action", func(e *Entry) { e.Action = ActionPunchDuplicate }},
		{"entity type", func(e *Entry) { e.EntityType = EntitySpan }},
		{"entity id", func(e *Entry) { e.EntityID = "other" }},
		{"tenant", func(e *Entry) { e.TenantID = id.TenantID(uuid.New()) }},
		{"timestamp", func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Microsecond) }},
		{"id", func(e *Entry) { e.ID = id.EntryID(uuid.New()) }},
		{"checksum", func(e *Entry) { e.Checksum = "00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry(time.Now())
			tt.mutate(e)
			assert.False(t, e.ChecksumMatches())
		})
	}
}

func TestCanonicalIsStable(t *testing.T) {
	e := newEntry(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, e.Canonical(), e.Clone().Canonical())
	assert.Contains(t, string(e.Canonical()), `"timestamp":"2026-01-01T00:00:00Z"`)
}

func TestCloneIsDeep(t *testing.T) {
	ref := id.EntryID(uuid.New())
	e := newEntry(time.Now())
	e.RefersTo = &ref
	e.Details = map[string]string{"rows": "10"}

	cp := e.Clone()
	cp.Details["rows"] = "99"
	*cp.RefersTo = id.EntryID(uuid.New())

	assert.Equal(t, "10", e.Details["rows"])
	assert.Equal(t, ref, *e.RefersTo)
}
