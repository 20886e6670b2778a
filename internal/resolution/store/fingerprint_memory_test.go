package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "timekeep/pkg/domain"
	"timekeep/pkg/testutil"
)

func TestInMemoryFingerprints(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s := NewInMemoryFingerprints().WithClock(clock.Now)
	tenant := id.TenantID(uuid.New())

	first, err := s.Claim(ctx, tenant, "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Claim(ctx, tenant, "fp", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	t.Run("other tenant has its own namespace", func(t *testing.T) {
		ok, err := s.Claim(ctx, id.TenantID(uuid.New()), "fp", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired claim can be retaken", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		ok, err := s.Claim(ctx, tenant, "fp", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release reopens the fingerprint", func(t *testing.T) {
		require.NoError(t, s.Release(ctx, tenant, "fp"))
		ok, err := s.Claim(ctx, tenant, "fp", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestInMemoryFingerprintsSingleWinner(t *testing.T) {
	s := NewInMemoryFingerprints()
	tenant := id.TenantID(uuid.New())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(context.Background(), tenant, "same", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
