package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"timekeep/internal/anomaly/models"
	"timekeep/internal/anomaly/rules"
	"timekeep/internal/anomaly/store"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/internal/notify"
	id "timekeep/pkg/domain"
)

type recordingSink struct {
	events []notify.Event
	full   bool
}

func (r *recordingSink) TryEnqueue(e notify.Event) bool {
	if r.full {
		return false
	}
	r.events = append(r.events, e)
	return true
}

type brokenRule struct{}

func (brokenRule) Type() models.Type { return models.TypeRapidAction }

func (brokenRule) Evaluate(context.Context, auditmodels.Entry) (*models.Finding, error) {
	return nil, errors.New("window store unavailable")
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	signals  *store.InMemorySignals
	metrics  *Metrics
	engine   *Engine
	consumer *Consumer
	events   *recordingSink
	tenant   id.TenantID
	base     time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.signals = store.NewInMemorySignals()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.events = &recordingSink{}
	s.tenant = id.TenantID(uuid.New())
	s.base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cfg := rules.Config{
		FailedLoginThreshold:  5,
		FailedLoginWindow:     15 * time.Minute,
		MaxConcurrentSessions: 3,
		SessionTTL:            time.Hour,
		ImpossibleTravelKmh:   900,
		BusinessHoursStart:    0,
		BusinessHoursEnd:      24,
	}
	deps := rules.Deps{
		Windows:   store.NewInMemoryWindows(),
		Sessions:  store.NewInMemorySessions(),
		Locations: store.NewInMemoryLocations(),
	}
	s.engine = s.newEngine(rules.Security(cfg, deps))

	var err error
	s.consumer, err = NewConsumer(s.engine,
		WithEvents(s.events),
		WithConsumerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) newEngine(rs []rules.Rule) *Engine {
	e, err := NewEngine("security", rs, s.signals,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.base.Add(time.Hour) }),
	)
	s.Require().NoError(err)
	return e
}

func (s *EngineSuite) failedLogin(account string, offset time.Duration) auditmodels.Entry {
	return auditmodels.Entry{
		ID:         id.NewEntryID(),
		TenantID:   s.tenant,
		Timestamp:  s.base.Add(offset),
		Actor:      account,
		Action:     auditmodels.ActionLoginFailed,
		EntityType: auditmodels.EntityAccount,
		EntityID:   account,
	}
}

func (s *EngineSuite) stored() []*models.Signal {
	out, err := s.signals.List(s.ctx, models.Query{TenantID: s.tenant, Limit: models.MaxQueryLimit})
	s.Require().NoError(err)
	return out
}

func (s *EngineSuite) TestNewEngine() {
	_, err := NewEngine("", nil, s.signals)
	s.Error(err)
	_, err = NewEngine("security", nil, nil)
	s.Error(err)
	_, err = NewConsumer(nil)
	s.Error(err)
}

func (s *EngineSuite) TestFailedLoginBurstRaisesOneSignal() {
	var entries []auditmodels.Entry
	for i := range 50 {
		entries = append(entries, s.failedLogin("acct-7", time.Duration(i)*15*time.Second))
	}
	for _, e := range entries {
		s.Require().NoError(s.consumer.Handle(s.ctx, e))
	}

	signals := s.stored()
	s.Require().Len(signals, 1)
	sig := signals[0]
	s.Equal(models.TypeFailedLogin, sig.Type)
	s.Equal("acct-7", sig.Subject)
	s.Equal(models.StatusNew, sig.Status)
	s.Equal(entries[4].ID, sig.EntryID)
	s.Equal(5.0, sig.Actual)

	s.Require().Len(s.events.events, 1)
	s.Equal(notify.EventAnomalyDetected, s.events.events[0].Type)
	s.Equal(s.tenant, s.events.events[0].TenantID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Signals.WithLabelValues(string(models.TypeFailedLogin), string(models.SeverityHigh))))
	s.Equal(50.0, testutil.ToFloat64(s.metrics.Evaluations.WithLabelValues("security")))

	// at-least-once delivery: the crossing entry comes round again
	created, err := s.engine.Evaluate(s.ctx, entries[4])
	s.Require().NoError(err)
	s.Empty(created)
	s.Len(s.stored(), 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Suppressed.WithLabelValues(string(models.TypeFailedLogin))))
}

func (s *EngineSuite) TestAccountsAreCountedSeparately() {
	for i := range 4 {
		s.Require().NoError(s.consumer.Handle(s.ctx, s.failedLogin("a", time.Duration(i)*time.Second)))
		s.Require().NoError(s.consumer.Handle(s.ctx, s.failedLogin("b", time.Duration(i)*time.Second)))
	}
	s.Empty(s.stored())
}

func (s *EngineSuite) TestRuleFailureDoesNotStopOthers() {
	cfg := rules.Config{FailedLoginThreshold: 1, FailedLoginWindow: time.Minute}
	deps := rules.Deps{Windows: store.NewInMemoryWindows()}
	engine := s.newEngine(append([]rules.Rule{brokenRule{}}, rules.Security(cfg, deps)...))

	created, err := engine.Evaluate(s.ctx, s.failedLogin("a", 0))
	s.Error(err)
	s.Contains(err.Error(), "window store unavailable")
	s.Len(created, 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RuleErrors.WithLabelValues(string(models.TypeRapidAction))))
}

func (s *EngineSuite) TestHandlePublishesSignalsBeforeReturningRuleErrors() {
	cfg := rules.Config{FailedLoginThreshold: 1, FailedLoginWindow: time.Minute}
	engine := s.newEngine(append(rules.Security(cfg, rules.Deps{Windows: store.NewInMemoryWindows()}), brokenRule{}))
	consumer, err := NewConsumer(engine, WithEvents(s.events))
	s.Require().NoError(err)

	s.Error(consumer.Handle(s.ctx, s.failedLogin("a", 0)))
	s.Len(s.events.events, 1)
}

func (s *EngineSuite) TestReportTamper() {
	entry := auditmodels.Entry{
		ID:         id.NewEntryID(),
		TenantID:   s.tenant,
		Timestamp:  s.base,
		Actor:      "device:ZK-001",
		Action:     auditmodels.ActionPunchProcessed,
		EntityType: auditmodels.EntityPunch,
		EntityID:   "p-1",
	}
	s.Require().NoError(s.consumer.ReportTamper(s.ctx, entry))
	s.Require().NoError(s.consumer.ReportTamper(s.ctx, entry))

	signals := s.stored()
	s.Require().Len(signals, 1)
	s.Equal(models.TypeTamperSuspected, signals[0].Type)
	s.Equal(models.SeverityCritical, signals[0].Severity)
	s.Equal("punch:p-1", signals[0].Subject)
	s.Len(s.events.events, 1)
}

func (s *EngineSuite) TestDroppedNotificationKeepsSignal() {
	s.events.full = true
	cfg := rules.Config{FailedLoginThreshold: 1, FailedLoginWindow: time.Minute}
	engine := s.newEngine(rules.Security(cfg, rules.Deps{Windows: store.NewInMemoryWindows()}))
	consumer, err := NewConsumer(engine, WithEvents(s.events), WithConsumerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	s.NoError(consumer.Handle(s.ctx, s.failedLogin("a", 0)))
	s.Len(s.stored(), 1)
	s.Empty(s.events.events)
}
