package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	punchmodels "timekeep/internal/punch/models"
)

func TestCapture(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 2, 15, 0, time.UTC)
	lat, lon := 52.52, 13.405

	t.Run("maps state, method and quality", func(t *testing.T) {
		q := 85
		req, err := Record{DeviceUserID: "42", Timestamp: at, State: StateBreakOut, VerifyMode: VerifyFace, Quality: &q, Latitude: &lat, Longitude: &lon}.Capture("ZK-001")
		require.NoError(t, err)
		assert.Equal(t, punchmodels.CaptureRequest{
			DeviceSerial:       "ZK-001",
			DeviceUserID:       "42",
			PunchTime:          at,
			PunchType:          punchmodels.TypeBreakStart,
			VerificationMethod: "face",
			Quality:            85,
			Latitude:           &lat,
			Longitude:          &lon,
		}, req)
	})

	t.Run("missing score is a full match", func(t *testing.T) {
		req, err := Record{DeviceUserID: "42", Timestamp: at, State: StateOvertimeOut, VerifyMode: 7}.Capture("ZK-001")
		require.NoError(t, err)
		assert.Equal(t, 100, req.Quality)
		assert.Equal(t, punchmodels.TypeCheckOut, req.PunchType)
		assert.Equal(t, "mode_7", req.VerificationMethod)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := Record{DeviceUserID: "42", Timestamp: at, State: 9}.Capture("ZK-001")
		assert.Error(t, err)
	})
}
