package resolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"timekeep/internal/punch/models"
)

func event(at time.Time) models.Event {
	return models.Event{
		DeviceSerial: "ZK-001",
		DeviceUserID: "42",
		PunchTime:    at,
		Type:         models.TypeCheckIn,
	}
}

func TestFingerprint(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tol := 60 * time.Second

	t.Run("same window shares a fingerprint", func(t *testing.T) {
		assert.Equal(t, Fingerprint(event(base.Add(5*time.Second)), tol), Fingerprint(event(base.Add(59*time.Second)), tol))
	})

	t.Run("adjacent windows differ", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(event(base.Add(59*time.Second)), tol), Fingerprint(event(base.Add(61*time.Second)), tol))
	})

	t.Run("type is part of the identity", func(t *testing.T) {
		out := event(base)
		out.Type = models.TypeCheckOut
		assert.NotEqual(t, Fingerprint(event(base), tol), Fingerprint(out, tol))
	})

	t.Run("device user is part of the identity", func(t *testing.T) {
		other := event(base)
		other.DeviceUserID = "43"
		assert.NotEqual(t, Fingerprint(event(base), tol), Fingerprint(other, tol))
	})

	t.Run("zone does not matter", func(t *testing.T) {
		local := base.In(time.FixedZone("x", 3*3600))
		assert.Equal(t, Fingerprint(event(base), tol), Fingerprint(event(local), tol))
	})

	t.Run("hex encoded 256 bit digest", func(t *testing.T) {
		assert.Len(t, Fingerprint(event(base), tol), 64)
	})
}

func TestWindowBeforeEpoch(t *testing.T) {
	at := time.Unix(-30, 0)
	assert.Equal(t, int64(-60), window(at, time.Minute))
}
