// Package service polls attendance terminals and feeds their records into
// the punch gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"timekeep/internal/device/models"
	"timekeep/internal/notify"
	punchmodels "timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/requestcontext"
)

// Transport is the capability set every device variant provides.
type Transport interface {
	Connect(ctx context.Context, serial string) (*models.Info, error)
	FetchRecords(ctx context.Context, serial string) ([]models.Record, error)
	Clear(ctx context.Context, serial string) error
	Disconnect(ctx context.Context, serial string) error
}

// Gateway accepts normalized punches.
type Gateway interface {
	SubmitBatch(ctx context.Context, reqs []punchmodels.CaptureRequest) *punchmodels.BatchResponse
}

// Device is one polled terminal and the tenant it reports for.
type Device struct {
	Serial   string
	TenantID id.TenantID
}

const (
	defaultInterval    = 30 * time.Second
	defaultConcurrency = 4
	// matches the gateway's batch limit
	batchSize = 500
)

// Poller reads every configured device on an interval. Records are only
// cleared from a device once nothing in the poll can succeed on a retry, so
// a failed submission is picked up again next time and deduplicated.
type Poller struct {
	transport   Transport
	gateway     Gateway
	devices     []Device
	interval    time.Duration
	concurrency int
	clearAfter  bool
	pipeline    *resilience.Pipeline
	events      notify.Sink
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time

	mu     sync.Mutex
	status map[string]models.Status
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClearAfterFetch removes records from the device once they are safely
// ingested.
func WithClearAfterFetch(clear bool) Option {
	return func(p *Poller) {
		p.clearAfter = clear
	}
}

// WithPipeline guards every transport call.
func WithPipeline(pl *resilience.Pipeline) Option {
	return func(p *Poller) {
		p.pipeline = pl
	}
}

func WithEvents(sink notify.Sink) Option {
	return func(p *Poller) {
		p.events = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(transport Transport, gateway Gateway, devices []Device, opts ...Option) (*Poller, error) {
	if transport == nil || gateway == nil {
		return nil, errors.New("transport and gateway are required")
	}
	for _, d := range devices {
		if d.Serial == "" || d.TenantID.IsNil() {
			return nil, fmt.Errorf("device %q: serial and tenant are required", d.Serial)
		}
	}
	p := &Poller{
		transport:   transport,
		gateway:     gateway,
		devices:     slices.Clone(devices),
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
		events:      notify.Discard{},
		logger:      slog.Default(),
		now:         time.Now,
		status:      make(map[string]models.Status),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.devices) == 0 {
		<-ctx.Done()
		return nil
	}
	p.logger.InfoContext(ctx, "device poller started", "devices", len(p.devices), "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.PollAll(ctx)
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "device poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollAll polls every device, a bounded number at a time. A failing device
// never stops the others.
func (p *Poller) PollAll(ctx context.Context) []*models.PollResult {
	results := make([]*models.PollResult, len(p.devices))
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, d := range p.devices {
		g.Go(func() error {
			res, err := p.Poll(ctx, d)
			if err != nil {
				p.logger.WarnContext(ctx, "device poll failed",
					"device_serial", d.Serial,
					"tenant_id", d.TenantID,
					"error", err,
				)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Poll reads one device and submits its records as that device.
func (p *Poller) Poll(ctx context.Context, d Device) (*models.PollResult, error) {
	ctx = requestcontext.WithTenantID(ctx, d.TenantID)
	ctx = requestcontext.WithActor(ctx, "device:"+d.Serial)
	res := &models.PollResult{Serial: d.Serial}

	info, err := resilience.Do(ctx, p.pipeline, func(ctx context.Context) (*models.Info, error) {
		return p.transport.Connect(ctx, d.Serial)
	})
	if err != nil {
		p.setStatus(ctx, d, models.StatusOffline, err.Error(), nil)
		p.countPoll("unreachable")
		return res, fmt.Errorf("connect %s: %w", d.Serial, err)
	}
	p.setStatus(ctx, d, models.StatusOnline, "", info)
	defer func() {
		if err := p.pipeline.Execute(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return p.transport.Disconnect(ctx, d.Serial)
		}); err != nil {
			p.logger.WarnContext(ctx, "device disconnect failed", "device_serial", d.Serial, "error", err)
		}
	}()

	records, err := resilience.Do(ctx, p.pipeline, func(ctx context.Context) ([]models.Record, error) {
		return p.transport.FetchRecords(ctx, d.Serial)
	})
	if err != nil {
		p.setStatus(ctx, d, models.StatusOffline, err.Error(), nil)
		p.countPoll("fetch_failed")
		return res, fmt.Errorf("fetch %s: %w", d.Serial, err)
	}
	res.Fetched = len(records)

	captures := make([]punchmodels.CaptureRequest, 0, len(records))
	for _, rec := range records {
		c, err := rec.Capture(d.Serial)
		if err != nil {
			res.Skipped++
			p.logger.WarnContext(ctx, "device record skipped", "device_serial", d.Serial, "error", err)
			continue
		}
		captures = append(captures, c)
	}

	retryable := false
	for chunk := range slices.Chunk(captures, batchSize) {
		batch := p.gateway.SubmitBatch(ctx, chunk)
		res.Accepted += batch.Accepted
		res.Rejected += batch.Rejected
		for _, r := range batch.Results {
			if !r.Success && isRetryable(r) {
				retryable = true
			}
		}
	}
	p.countRecords(res)

	if p.clearAfter && res.Fetched > 0 && !retryable {
		if err := p.pipeline.Execute(ctx, func(ctx context.Context) error {
			return p.transport.Clear(ctx, d.Serial)
		}); err != nil {
			p.countPoll("clear_failed")
			return res, fmt.Errorf("clear %s: %w", d.Serial, err)
		}
		res.Cleared = true
	}
	p.countPoll("ok")
	p.logger.InfoContext(ctx, "device polled",
		"device_serial", d.Serial,
		"tenant_id", d.TenantID,
		"fetched", res.Fetched,
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"skipped", res.Skipped,
		"cleared", res.Cleared,
	)
	return res, nil
}

// Status is the last observed status of serial, empty before its first poll.
func (p *Poller) Status(serial string) models.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[serial]
}

func (p *Poller) setStatus(ctx context.Context, d Device, status models.Status, reason string, info *models.Info) {
	p.mu.Lock()
	prev := p.status[d.Serial]
	p.status[d.Serial] = status
	p.mu.Unlock()

	if p.metrics != nil {
		v := 0.0
		if status == models.StatusOnline {
			v = 1
		}
		p.metrics.Online.WithLabelValues(d.Serial).Set(v)
	}
	if prev == status {
		return
	}
	p.logger.InfoContext(ctx, "device status changed",
		"device_serial", d.Serial,
		"tenant_id", d.TenantID,
		"status", status,
		"previous_status", prev,
		"reason", reason,
	)
	now := p.now().UTC()
	change := models.StatusChange{
		TenantID:  d.TenantID,
		Serial:    d.Serial,
		Status:    status,
		Previous:  prev,
		Reason:    reason,
		Info:      info,
		ChangedAt: now,
	}
	if !p.events.TryEnqueue(notify.New(notify.EventDeviceStatusChanged, d.TenantID, now, change)) {
		p.logger.WarnContext(ctx, "device status notification dropped", "device_serial", d.Serial)
	}
}

// isRetryable reports whether a rejected punch could succeed on a later
// submission. Validation failures never will.
func isRetryable(r *punchmodels.Result) bool {
	for _, e := range r.Errors {
		switch e.Code {
		case dErrors.CodeDependencyUnavailable, dErrors.CodeAuditWriteFailed, dErrors.CodeTimeout, dErrors.CodeInternal:
			return true
		}
	}
	return len(r.Errors) == 0
}

func (p *Poller) countPoll(result string) {
	if p.metrics != nil {
		p.metrics.Polls.WithLabelValues(result).Inc()
	}
}

func (p *Poller) countRecords(res *models.PollResult) {
	if p.metrics == nil {
		return
	}
	p.metrics.Records.WithLabelValues("accepted").Add(float64(res.Accepted))
	p.metrics.Records.WithLabelValues("rejected").Add(float64(res.Rejected))
	p.metrics.Records.WithLabelValues("skipped").Add(float64(res.Skipped))
}
