package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSameKeyIsExclusive(t *testing.T) {
	l := New(8)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock("tenant:emp:2026-10-15", func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestDifferentShardsDoNotBlock(t *testing.T) {
	l := New(1024)

	// find two keys on different shards
	a, b := "key-a", ""
	for i := 0; i < 1000; i++ {
		candidate := "key-" + string(rune('b'+i%20)) + string(rune('a'+i/20))
		if l.shard(candidate) != l.shard(a) {
			b = candidate
			break
		}
	}
	if b == "" {
		t.Skip("no distinct shard found")
	}

	unlockA := l.Lock(a)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock(b)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestNewClampsShards(t *testing.T) {
	l := New(0)
	assert.Len(t, l.shards, 1)
}
