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
	"go.uber.org/mock/gomock"

	"timekeep/internal/audit/metrics"
	"timekeep/internal/audit/models"
	"timekeep/internal/audit/service/mocks"
	"timekeep/internal/audit/store"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
	txcontext "timekeep/pkg/platform/tx"
	"timekeep/pkg/requestcontext"
)

//go:generate mockgen -source=logger.go -destination=mocks/mocks.go -package=mocks Store,Subscriber,TamperReporter

type LoggerSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	store    *store.InMemoryStore
	reporter *mocks.MockTamperReporter
	metrics  *metrics.Metrics
	logger   *Logger
	tenant   id.TenantID
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.reporter = mocks.NewMockTamperReporter(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.tenant = id.TenantID(uuid.New())

	// nanosecond component exercises truncation
	now := time.Date(2026, 3, 2, 9, 2, 15, 123456789, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.ctx = requestcontext.WithClientMetadata(s.ctx, "10.1.1.1", "device-fw/1.0")

	var err error
	s.logger, err = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithTamperReporter(s.reporter),
	)
	s.Require().NoError(err)
}

func (s *LoggerSuite) record(action models.Action) models.Record {
	return models.Record{
		TenantID:   s.tenant,
		Actor:      "device:ZK-001",
		Action:     action,
		EntityType: models.EntityPunch,
		EntityID:   uuid.NewString(),
	}
}

func (s *LoggerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
	})
}

func (s *LoggerSuite) TestAppend() {
	s.Run("writes one verified entry with a reproducible checksum", func() {
		entry, err := s.logger.Append(s.ctx, s.record(models.ActionPunchProcessed))
		s.Require().NoError(err)

		s.True(entry.Verified)
		s.Equal(0, entry.Timestamp.Nanosecond()%1000)
		s.Equal("10.1.1.1", entry.ClientIP)
		s.Equal("device-fw/1.0", entry.UserAgent)
		s.True(entry.ChecksumMatches())

		stored, err := s.store.Get(s.ctx, s.tenant, entry.ID)
		s.Require().NoError(err)
		s.Equal(entry.Checksum, stored.Checksum)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.EntriesAppended.WithLabelValues(string(models.ActionPunchProcessed))))
	})

	s.Run("actor falls back to the request context then to system", func() {
		rec := s.record(models.ActionAdminAction)
		rec.Actor = ""

		entry, err := s.logger.Append(requestcontext.WithActor(s.ctx, "operator:ana"), rec)
		s.Require().NoError(err)
		s.Equal("operator:ana", entry.Actor)

		entry, err = s.logger.Append(s.ctx, rec)
		s.Require().NoError(err)
		s.Equal("system", entry.Actor)
	})

	s.Run("invalid record is rejected without a write", func() {
		rec := s.record(models.ActionPunchProcessed)
		rec.EntityID = ""
		_, err := s.logger.Append(s.ctx, rec)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("caller details are copied", func() {
		rec := s.record(models.ActionDataExported)
		rec.Details = map[string]string{models.DetailRows: "10"}
		entry, err := s.logger.Append(s.ctx, rec)
		s.Require().NoError(err)

		rec.Details[models.DetailRows] = "99999"
		stored, err := s.store.Get(s.ctx, s.tenant, entry.ID)
		s.Require().NoError(err)
		s.Equal("10", stored.Details[models.DetailRows])
	})
}

func (s *LoggerSuite) TestAppendFailureIsFatal() {
	mockStore := mocks.NewMockStore(s.ctrl)
	mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(2)
	sub := mocks.NewMockSubscriber(s.ctrl)
	// no Offer expected: failed writes are never analysed

	pipeline := resilience.New(resilience.DependencyAudit, resilience.WithPolicies(
		resilience.Retry(resilience.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond}),
	))
	logger, err := New(mockStore, WithPipeline(pipeline), WithMetrics(s.metrics), WithSubscribers(sub),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	entry, err := logger.Append(s.ctx, s.record(models.ActionPunchProcessed))

	s.Nil(entry)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditWriteFailed))
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AppendFailures))
}

func (s *LoggerSuite) TestSubscribersReceiveEntries() {
	accepting := mocks.NewMockSubscriber(s.ctrl)
	full := mocks.NewMockSubscriber(s.ctrl)
	full.EXPECT().Name().Return("security").AnyTimes()

	s.logger.AddSubscriber(accepting)
	s.logger.AddSubscriber(full)

	var offered models.Entry
	accepting.EXPECT().Offer(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e models.Entry) bool {
		offered = e
		return true
	})
	full.EXPECT().Offer(gomock.Any(), gomock.Any()).Return(false)

	entry, err := s.logger.Append(s.ctx, s.record(models.ActionLoginFailed))

	s.Require().NoError(err)
	s.Equal(entry.ID, offered.ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SubscriberReject.WithLabelValues("security")))
}

func (s *LoggerSuite) TestSubscribersWaitForCommit() {
	sub := mocks.NewMockSubscriber(s.ctrl)
	sub.EXPECT().Name().Return("anomaly").AnyTimes()
	s.logger.AddSubscriber(sub)

	s.Run("rolled back entries are never offered", func() {
		err := txcontext.MemoryRunner{}.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := s.logger.Append(ctx, s.record(models.ActionLoginFailed))
			s.Require().NoError(err)
			return errors.New("span update failed")
		})
		s.Require().Error(err)

		entries, err := s.logger.Query(s.ctx, models.Query{TenantID: s.tenant})
		s.Require().NoError(err)
		s.Empty(entries, "the write rolled back with its transaction")
	})

	s.Run("committed entries are offered after commit", func() {
		offered := false
		sub.EXPECT().Offer(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, models.Entry) bool {
			offered = true
			return true
		})
		err := txcontext.MemoryRunner{}.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := s.logger.Append(ctx, s.record(models.ActionLoginFailed))
			s.Require().NoError(err)
			s.False(offered, "offer waits for the transaction")
			return nil
		})
		s.Require().NoError(err)
		s.True(offered)
	})
}

func (s *LoggerSuite) TestVerify() {
	s.Run("fresh entry verifies", func() {
		entry, err := s.logger.Append(s.ctx, s.record(models.ActionPunchProcessed))
		s.Require().NoError(err)

		ok, err := s.logger.Verify(s.ctx, s.tenant, entry.ID)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("mismatch marks unverified, reports, and preserves the entry", func() {
		entry, err := s.logger.Append(s.ctx, s.record(models.ActionPunchProcessed))
		s.Require().NoError(err)
		s.store.Tamper(entry.ID, func(e *models.Entry) { e.Actor = "intruder" })

		s.reporter.EXPECT().ReportTamper(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e models.Entry) error {
				s.Equal(entry.ID, e.ID)
				s.False(e.Verified)
				return nil
			})

		ok, err := s.logger.Verify(s.ctx, s.tenant, entry.ID)
		s.Require().NoError(err)
		s.False(ok)

		stored, err := s.store.Get(s.ctx, s.tenant, entry.ID)
		s.Require().NoError(err)
		s.False(stored.Verified)
		s.Equal("intruder", stored.Actor, "tampered content is never auto-corrected")
		s.Equal(entry.Checksum, stored.Checksum)
	})

	s.Run("other tenant cannot see the entry", func() {
		entry, err := s.logger.Append(s.ctx, s.record(models.ActionPunchProcessed))
		s.Require().NoError(err)

		_, err = s.logger.Verify(s.ctx, id.TenantID(uuid.New()), entry.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LoggerSuite) TestVerifyRange() {
	var tampered id.EntryID
	for i := 0; i < 5; i++ {
		entry, err := s.logger.Append(s.ctx, s.record(models.ActionPunchProcessed))
		s.Require().NoError(err)
		if i == 3 {
			tampered = entry.ID
		}
	}
	s.store.Tamper(tampered, func(e *models.Entry) { e.EntityID = "rewritten" })
	s.reporter.EXPECT().ReportTamper(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.logger.VerifyRange(s.ctx, models.Query{TenantID: s.tenant})

	s.Require().NoError(err)
	s.Equal(5, report.Checked)
	s.Equal(1, report.Failed)
	s.Equal([]id.EntryID{tampered}, report.Failures)
}

func (s *LoggerSuite) TestQuery() {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, action := range []models.Action{models.ActionLoginFailed, models.ActionPunchProcessed, models.ActionLoginFailed} {
		rec := s.record(action)
		if i == 2 {
			rec.Actor = "operator:ana"
		}
		_, err := s.logger.Append(requestcontext.WithTime(s.ctx, base.Add(time.Duration(i)*time.Hour)), rec)
		s.Require().NoError(err)
	}

	s.Run("requires tenant", func() {
		_, err := s.logger.Query(s.ctx, models.Query{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects inverted range", func() {
		_, err := s.logger.Query(s.ctx, models.Query{TenantID: s.tenant, From: base, To: base.Add(-time.Hour)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("filters by action", func() {
		got, err := s.logger.Query(s.ctx, models.Query{TenantID: s.tenant, Actions: []models.Action{models.ActionLoginFailed}})
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("filters by actor and range", func() {
		got, err := s.logger.Query(s.ctx, models.Query{TenantID: s.tenant, Actor: "device:ZK-001", From: base.Add(30 * time.Minute)})
		s.Require().NoError(err)
		s.Len(got, 1)
		s.Equal(models.ActionPunchProcessed, got[0].Action)
	})

	s.Run("tenant isolation", func() {
		got, err := s.logger.Query(s.ctx, models.Query{TenantID: id.TenantID(uuid.New())})
		s.Require().NoError(err)
		s.Empty(got)
	})
}
