// Package queue provides the bounded, non-blocking hand-off between the
// synchronous audit write and the asynchronous rule engines.
//
// Overflow policy is reject-new: TryEnqueue never blocks and returns false
// when the buffer is full. Every rejection is counted and logged at most once
// per log interval. On shutdown the queue stops intake and drains what it
// already accepted until the drain deadline; anything left after that is
// counted as dropped.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Item is one queued value.
type Item[T any] struct {
	Value      T
	EnqueuedAt time.Time
}

// Handler processes one value. Each call gets its own timeout; a panic is
// recovered and treated as a failure of that item only.
type Handler[T any] func(ctx context.Context, v T) error

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("queue already running")

const (
	defaultWorkers       = 2
	defaultHandleTimeout = 5 * time.Second
	defaultDrainTimeout  = 10 * time.Second
	defaultLogInterval   = 5 * time.Second
)

type Bounded[T any] struct {
	name          string
	items         chan Item[T]
	workers       int
	handleTimeout time.Duration
	drainTimeout  time.Duration
	logInterval   time.Duration
	logger        *slog.Logger
	metrics       *Metrics
	now           func() time.Time

	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	running atomic.Bool

	lastRejectLog atomic.Int64
	suppressed    atomic.Int64
}

type Option func(*options)

type options struct {
	workers       int
	handleTimeout time.Duration
	drainTimeout  time.Duration
	logInterval   time.Duration
	logger        *slog.Logger
	metrics       *Metrics
	now           func() time.Time
}

func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithHandleTimeout bounds each handler call.
func WithHandleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handleTimeout = d
		}
	}
}

// WithDrainTimeout bounds how long Run keeps handling accepted items after
// intake stops.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// WithRejectLogInterval sets the minimum gap between saturation log lines.
func WithRejectLogInterval(d time.Duration) Option {
	return func(o *options) {
		o.logInterval = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a queue holding at most capacity items.
func New[T any](name string, capacity int, opts ...Option) (*Bounded[T], error) {
	if name == "" {
		return nil, errors.New("queue name is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("queue %s: capacity must be positive, got %d", name, capacity)
	}
	o := options{
		workers:       defaultWorkers,
		handleTimeout: defaultHandleTimeout,
		drainTimeout:  defaultDrainTimeout,
		logInterval:   defaultLogInterval,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bounded[T]{
		name:          name,
		items:         make(chan Item[T], capacity),
		workers:       o.workers,
		handleTimeout: o.handleTimeout,
		drainTimeout:  o.drainTimeout,
		logInterval:   o.logInterval,
		logger:        o.logger,
		metrics:       o.metrics,
		now:           o.now,
		closing:       make(chan struct{}),
	}, nil
}

func (q *Bounded[T]) Name() string { return q.name }

// Len is the number of items waiting.
func (q *Bounded[T]) Len() int { return len(q.items) }

func (q *Bounded[T]) Cap() int { return cap(q.items) }

// TryEnqueue offers v without blocking. False means v was rejected because
// the queue is full or closed.
func (q *Bounded[T]) TryEnqueue(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.reject("closed")
		return false
	}
	select {
	case q.items <- Item[T]{Value: v, EnqueuedAt: q.now()}:
		if q.metrics != nil {
			q.metrics.Enqueued.WithLabelValues(q.name).Inc()
			q.metrics.Depth.WithLabelValues(q.name).Set(float64(len(q.items)))
		}
		return true
	default:
		q.reject("full")
		return false
	}
}

// Offer lets a queue act as an audit subscriber.
func (q *Bounded[T]) Offer(_ context.Context, v T) bool {
	return q.TryEnqueue(v)
}

func (q *Bounded[T]) reject(reason string) {
	if q.metrics != nil {
		q.metrics.Rejected.WithLabelValues(q.name).Inc()
	}
	now := q.now().UnixNano()
	last := q.lastRejectLog.Load()
	if now-last < int64(q.logInterval) || !q.lastRejectLog.CompareAndSwap(last, now) {
		q.suppressed.Add(1)
		return
	}
	q.logger.Warn("queue saturated, item rejected",
		"queue", q.name,
		"reason", reason,
		"capacity", cap(q.items),
		"suppressed", q.suppressed.Swap(0),
	)
}

// Close stops intake. Items already accepted are still handled by Run.
// Close is idempotent.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
	close(q.closing)
}

// Run handles items with the configured number of workers until the queue is
// closed and drained. Cancelling ctx closes the queue; accepted items are
// then drained under a fresh deadline so shutdown does not lose work that
// was already acknowledged to the audit logger.
func (q *Bounded[T]) Run(ctx context.Context, h Handler[T]) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	drainCtx, cancelDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDrain()

	go func() {
		select {
		case <-ctx.Done():
			q.Close()
		case <-q.closing:
		}
		timer := time.NewTimer(q.drainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			q.logger.Warn("queue drain deadline reached", "queue", q.name, "remaining", len(q.items))
			cancelDrain()
		case <-drainCtx.Done():
		}
	}()

	g := new(errgroup.Group)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			q.work(drainCtx, h)
			return nil
		})
	}
	_ = g.Wait()

	dropped := 0
	for range q.items {
		dropped++
	}
	if dropped > 0 {
		if q.metrics != nil {
			q.metrics.Dropped.WithLabelValues(q.name).Add(float64(dropped))
		}
		q.logger.Error("queue items dropped at shutdown", "queue", q.name, "dropped", dropped)
	}
	if q.metrics != nil {
		q.metrics.Depth.WithLabelValues(q.name).Set(0)
	}
	return nil
}

func (q *Bounded[T]) work(ctx context.Context, h Handler[T]) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.items:
			if !ok {
				return
			}
			q.handle(ctx, h, item)
		}
	}
}

func (q *Bounded[T]) handle(ctx context.Context, h Handler[T], item Item[T]) {
	ctx, cancel := context.WithTimeout(ctx, q.handleTimeout)
	defer cancel()

	result := "ok"
	err := q.safeCall(ctx, h, item.Value)
	switch {
	case err == nil:
	case errors.Is(err, errPanicked):
		result = "panic"
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	if err != nil {
		q.logger.ErrorContext(ctx, "queue handler failed",
			"queue", q.name,
			"result", result,
			"error", err,
		)
	}
	if q.metrics != nil {
		q.metrics.Handled.WithLabelValues(q.name, result).Inc()
		q.metrics.Latency.WithLabelValues(q.name).Observe(q.now().Sub(item.EnqueuedAt).Seconds())
		q.metrics.Depth.WithLabelValues(q.name).Set(float64(len(q.items)))
	}
}

var errPanicked = errors.New("handler panicked")

func (q *Bounded[T]) safeCall(ctx context.Context, h Handler[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(ctx, "queue handler panic",
				"queue", q.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return h(ctx, v)
}
