// Package circuit implements a failure-ratio circuit breaker over a rolling
// sampling window.
//
// Closed: calls flow and outcomes are sampled into time buckets. Once the
// window holds at least MinThroughput samples and the failure ratio reaches
// FailureRatio the breaker opens. Open: Allow rejects immediately until the
// break duration elapses. Half-open: a single probe is admitted at a time;
// SuccessThreshold consecutive probe successes close the breaker, any probe
// failure re-opens it.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// State is the breaker's externally visible state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// StateChange reports a transition caused by a Record call.
type StateChange struct {
	Opened     bool
	HalfOpened bool
	Closed     bool
}

// Changed reports whether any transition happened.
func (c StateChange) Changed() bool {
	return c.Opened || c.HalfOpened || c.Closed
}

type bucket struct {
	epoch     int64
	successes int
	failures  int
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureRatio     float64
	minThroughput    int
	window           time.Duration
	bucketCount      int
	breakDuration    time.Duration
	successThreshold int
	now              func() time.Time
	onChange         func(name string, from, to State)

	state             State
	buckets           []bucket
	openedAt          time.Time
	probeInFlight     bool
	halfOpenSuccesses int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureRatio sets the ratio (0,1] of failures that opens the breaker.
func WithFailureRatio(ratio float64) Option {
	return func(b *Breaker) {
		if ratio > 0 && ratio <= 1 {
			b.failureRatio = ratio
		}
	}
}

// WithMinThroughput sets how many samples the window needs before the ratio is trusted.
func WithMinThroughput(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.minThroughput = n
		}
	}
}

// WithSamplingWindow sets the rolling window length.
func WithSamplingWindow(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithBreakDuration sets how long the breaker stays open before probing.
func WithBreakDuration(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.breakDuration = d
		}
	}
}

// WithSuccessThreshold sets how many consecutive probe successes close the breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChangeHook is called (outside the lock) on every transition.
func WithStateChangeHook(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a closed breaker. Defaults: 50% failure ratio, 10 samples,
// 30s window in 10 buckets, 15s break, 1 probe success to close.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureRatio:     0.5,
		minThroughput:    10,
		window:           30 * time.Second,
		bucketCount:      10,
		breakDuration:    15 * time.Second,
		successThreshold: 1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.buckets = make([]bucket, b.bucketCount)
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting open to half-open when the break
// duration has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.breakDuration)) {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a call may proceed. A nil return obliges the caller to
// report the outcome with RecordSuccess, RecordFailure or Release.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var change *[2]State

	switch b.state {
	case StateOpen:
		if b.now().Before(b.openedAt.Add(b.breakDuration)) {
			b.mu.Unlock()
			return ErrOpen
		}
		change = &[2]State{StateOpen, StateHalfOpen}
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
		b.probeInFlight = true
	case StateHalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probeInFlight = true
	}
	b.mu.Unlock()

	if change != nil {
		b.notify(change[0], change[1])
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	now := b.now()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses < b.successThreshold {
			b.mu.Unlock()
			return StateChange{}
		}
		b.reset()
		b.mu.Unlock()
		b.notify(StateHalfOpen, StateClosed)
		return StateChange{Closed: true}
	}

	b.current(now).successes++
	b.mu.Unlock()
	return StateChange{}
}

// Release returns an admitted call without an outcome. A half-open probe slot
// is freed for the next caller and nothing is sampled.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
}

// RecordFailure records a failed call and opens the breaker when the ratio is crossed.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	now := b.now()

	switch b.state {
	case StateHalfOpen:
		b.trip(now)
		b.mu.Unlock()
		b.notify(StateHalfOpen, StateOpen)
		return StateChange{Opened: true}
	case StateOpen:
		b.mu.Unlock()
		return StateChange{}
	}

	b.current(now).failures++
	successes, failures := b.totals(now)
	total := successes + failures
	if total < b.minThroughput || float64(failures)/float64(total) < b.failureRatio {
		b.mu.Unlock()
		return StateChange{}
	}

	b.trip(now)
	b.mu.Unlock()
	b.notify(StateClosed, StateOpen)
	return StateChange{Opened: true}
}

// Reset manually closes the breaker and clears the window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.reset()
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// Counts returns the successes and failures currently inside the window.
func (b *Breaker) Counts() (successes, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totals(b.now())
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.probeInFlight = false
	b.halfOpenSuccesses = 0
}

// reset must be called with mu held.
func (b *Breaker) reset() {
	b.state = StateClosed
	b.probeInFlight = false
	b.halfOpenSuccesses = 0
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}

func (b *Breaker) bucketWidth() int64 {
	w := int64(b.window) / int64(b.bucketCount)
	if w <= 0 {
		return 1
	}
	return w
}

// current returns the bucket for now, recycling it if it belongs to an older epoch.
func (b *Breaker) current(now time.Time) *bucket {
	epoch := now.UnixNano() / b.bucketWidth()
	bk := &b.buckets[int(epoch%int64(b.bucketCount))]
	if bk.epoch != epoch {
		*bk = bucket{epoch: epoch}
	}
	return bk
}

func (b *Breaker) totals(now time.Time) (successes, failures int) {
	epoch := now.UnixNano() / b.bucketWidth()
	oldest := epoch - int64(b.bucketCount) + 1
	for _, bk := range b.buckets {
		if bk.epoch >= oldest && bk.epoch <= epoch {
			successes += bk.successes
			failures += bk.failures
		}
	}
	return successes, failures
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
