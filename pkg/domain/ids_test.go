package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "timekeep/pkg/domain-errors"
)

// TestParseID_Invariants validates "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEmployeeID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEmployeeID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseEmployeeID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		got, err := ParseEmployeeID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, EmployeeID(valid), got)
	})
}

func TestParseID_BoundaryInputs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE punches;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTenantID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()
	parsers := map[string]func(string) error{
		"tenant":   func(s string) error { _, err := ParseTenantID(s); return err },
		"employee": func(s string) error { _, err := ParseEmployeeID(s); return err },
		"punch":    func(s string) error { _, err := ParsePunchID(s); return err },
		"span":     func(s string) error { _, err := ParseSpanID(s); return err },
		"entry":    func(s string) error { _, err := ParseEntryID(s); return err },
		"signal":   func(s string) error { _, err := ParseSignalID(s); return err },
	}

	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, parse(valid))
			for _, bad := range []string{"", "invalid", uuid.Nil.String()} {
				require.Error(t, parse(bad), "input %q", bad)
			}
		})
	}
}

func TestNilChecks(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.False(t, NewEntryID().IsNil())
	assert.NotEqual(t, NewPunchID(), NewPunchID())
}

func TestTextMarshaling(t *testing.T) {
	raw := "550e8400-e29b-41d4-a716-446655440000"
	tenant, err := ParseTenantID(raw)
	require.NoError(t, err)

	b, err := json.Marshal(map[string]TenantID{"tenant_id": tenant})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"`+raw+`"}`, string(b))

	var decoded struct {
		TenantID TenantID `json:"tenant_id"`
		EntryID  *EntryID `json:"entry_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"`+raw+`","entry_id":"`+raw+`"}`), &decoded))
	assert.Equal(t, tenant, decoded.TenantID)
	require.NotNil(t, decoded.EntryID)
	assert.Equal(t, raw, decoded.EntryID.String())

	err = json.Unmarshal([]byte(`{"tenant_id":"not-a-uuid"}`), &decoded)
	assert.Error(t, err)
}
