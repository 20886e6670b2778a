package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"timekeep/pkg/platform/resilience"
)

// Channel is an out-of-process destination for events.
type Channel interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Outcome reports how far an event got. It is informational; a failed
// channel never fails the operation that produced the event.
type Outcome struct {
	Delivered int      `json:"delivered"`
	Dropped   int      `json:"dropped"`
	Failed    []string `json:"failed,omitempty"`
}

// OK reports whether every channel accepted the event.
func (o Outcome) OK() bool { return len(o.Failed) == 0 }

// Fanout delivers each event to the realtime hub and to every channel. Each
// channel call runs under the notify resilience stack.
type Fanout struct {
	hub      *Hub
	channels []Channel
	pipeline *resilience.Pipeline
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Fanout)

func WithChannels(channels ...Channel) Option {
	return func(f *Fanout) {
		f.channels = append(f.channels, channels...)
	}
}

func WithPipeline(p *resilience.Pipeline) Option {
	return func(f *Fanout) {
		f.pipeline = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fanout) {
		f.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fanout) {
		f.metrics = m
	}
}

func NewFanout(hub *Hub, opts ...Option) (*Fanout, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	f := &Fanout{hub: hub, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Fanout) Publish(ctx context.Context, ev Event) Outcome {
	var out Outcome
	out.Delivered, out.Dropped = f.hub.Broadcast(ev)
	f.count("realtime", out.Dropped == 0)

	for _, ch := range f.channels {
		err := f.pipeline.Execute(ctx, func(ctx context.Context) error {
			return ch.Publish(ctx, ev)
		})
		f.count(ch.Name(), err == nil)
		if err != nil {
			out.Failed = append(out.Failed, ch.Name())
			f.logger.WarnContext(ctx, "notification channel failed",
				"channel", ch.Name(),
				"event", ev.Type,
				"tenant_id", ev.TenantID,
				"error", err,
			)
		}
	}
	return out
}

// Handle is the notify queue handler. It reports channel failures so the
// queue counts them; nothing retries the event.
func (f *Fanout) Handle(ctx context.Context, ev Event) error {
	out := f.Publish(ctx, ev)
	if !out.OK() {
		return fmt.Errorf("%s event: channels failed: %v", ev.Type, out.Failed)
	}
	return nil
}

func (f *Fanout) count(channel string, ok bool) {
	if f.metrics == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	f.metrics.Published.WithLabelValues(channel, result).Inc()
}
