// Package keylock provides per-key mutual exclusion over a fixed set of
// shards. Two different keys may share a shard; no key ever waits on a
// global lock.
package keylock

import (
	"hash/maphash"
	"sync"
)

// Locker is safe for concurrent use.
type Locker struct {
	seed   maphash.Seed
	shards []sync.Mutex
}

// New creates a Locker with n shards (minimum 1).
func New(n int) *Locker {
	if n < 1 {
		n = 1
	}
	return &Locker{
		seed:   maphash.MakeSeed(),
		shards: make([]sync.Mutex, n),
	}
}

// Lock acquires key's shard and returns the matching unlock function.
func (l *Locker) Lock(key string) (unlock func()) {
	m := &l.shards[l.shard(key)]
	m.Lock()
	return m.Unlock
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(key string, fn func() error) error {
	unlock := l.Lock(key)
	defer unlock()
	return fn()
}

func (l *Locker) shard(key string) int {
	return int(maphash.String(l.seed, key) % uint64(len(l.shards)))
}
