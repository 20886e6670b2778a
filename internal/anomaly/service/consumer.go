package service

import (
	"context"
	"errors"
	"log/slog"

	"timekeep/internal/anomaly/models"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/internal/notify"
)

// Consumer adapts an Engine to a queue handler and publishes AnomalyDetected
// for every new signal. It is also the audit logger's tamper reporter.
type Consumer struct {
	engine *Engine
	events notify.Sink
	logger *slog.Logger
}

type ConsumerOption func(*Consumer)

func WithEvents(sink notify.Sink) ConsumerOption {
	return func(c *Consumer) {
		c.events = sink
	}
}

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func NewConsumer(engine *Engine, opts ...ConsumerOption) (*Consumer, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	c := &Consumer{engine: engine, events: notify.Discard{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle evaluates one queued entry. Signals stored before a rule failed are
// still published.
func (c *Consumer) Handle(ctx context.Context, entry auditmodels.Entry) error {
	signals, err := c.engine.Evaluate(ctx, entry)
	for _, sig := range signals {
		c.publish(ctx, sig)
	}
	return err
}

// ReportTamper raises the critical signal for an entry whose checksum no
// longer matches.
func (c *Consumer) ReportTamper(ctx context.Context, entry auditmodels.Entry) error {
	sig, ok, err := c.engine.Raise(ctx, entry, models.Finding{
		Type:      models.TypeTamperSuspected,
		Severity:  models.SeverityCritical,
		Subject:   string(entry.EntityType) + ":" + entry.EntityID,
		Metric:    "checksum_mismatch",
		Threshold: 0,
		Actual:    1,
		Message:   "audit entry checksum does not match its stored fields",
	})
	if err != nil {
		return err
	}
	if ok {
		c.publish(ctx, sig)
	}
	return nil
}

func (c *Consumer) publish(ctx context.Context, sig *models.Signal) {
	if !c.events.TryEnqueue(notify.New(notify.EventAnomalyDetected, sig.TenantID, sig.CreatedAt, sig)) {
		c.logger.WarnContext(ctx, "anomaly notification dropped",
			"tenant_id", sig.TenantID,
			"signal_id", sig.ID,
		)
	}
}
