package resolution

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

	"timekeep/internal/punch/models"
	"timekeep/internal/resolution/mocks"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/resilience"
	"timekeep/pkg/platform/sentinel"
)

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks DeviceRegistry,FingerprintStore,PunchReader

type EngineSuite struct {
	suite.Suite
	ctx          context.Context
	ctrl         *gomock.Controller
	registry     *mocks.MockDeviceRegistry
	fingerprints *mocks.MockFingerprintStore
	punches      *mocks.MockPunchReader
	metrics      *Metrics
	engine       *Engine
	tenant       id.TenantID
	employee     id.EmployeeID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockDeviceRegistry(s.ctrl)
	s.fingerprints = mocks.NewMockFingerprintStore(s.ctrl)
	s.punches = mocks.NewMockPunchReader(s.ctrl)
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.tenant = id.TenantID(uuid.New())
	s.employee = id.EmployeeID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := resilience.New("test",
		resilience.WithPassthrough(sentinel.ErrNotFound),
		resilience.WithLogger(logger),
	)

	var err error
	s.engine, err = New(s.registry, s.fingerprints, s.punches,
		Config{Tolerance: time.Minute, FingerprintTTL: 10 * time.Minute, QualityThreshold: 60},
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithRegistryPipeline(pipeline),
		WithCachePipeline(pipeline),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) event() models.Event {
	return models.Event{
		ID:           id.NewPunchID(),
		DeviceSerial: "ZK-001",
		DeviceUserID: "42",
		PunchTime:    time.Date(2026, 3, 2, 9, 2, 15, 0, time.UTC),
		Type:         models.TypeCheckIn,
		Quality:      85,
	}
}

func (s *EngineSuite) outcomes(o string) float64 {
	return testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues(o))
}

func (s *EngineSuite) TestNew() {
	s.Run("missing collaborators", func() {
		_, err := New(nil, s.fingerprints, s.punches, Config{Tolerance: time.Minute})
		s.Error(err)
	})
	s.Run("non-positive tolerance", func() {
		_, err := New(s.registry, s.fingerprints, s.punches, Config{})
		s.Error(err)
	})
	s.Run("ttl never shorter than tolerance", func() {
		e, err := New(s.registry, s.fingerprints, s.punches, Config{Tolerance: time.Minute, FingerprintTTL: time.Second})
		s.Require().NoError(err)
		s.Equal(time.Minute, e.cfg.FingerprintTTL)
	})
}

func (s *EngineSuite) TestResolve() {
	s.Run("known user resolves to employee", func() {
		ev := s.event()
		fp := Fingerprint(ev, time.Minute)
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, fp, 10*time.Minute).Return(true, nil)
		s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, "ZK-001", "42").Return(s.employee, nil)

		res, err := s.engine.Resolve(s.ctx, s.tenant, ev)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, res.Status)
		s.Require().NotNil(res.EmployeeID)
		s.Equal(s.employee, *res.EmployeeID)
		s.Equal(s.tenant, res.TenantID)
		s.Equal(fp, res.Fingerprint)
		s.Empty(res.Warnings)
	})

	s.Run("second submission in the window is a duplicate", func() {
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(false, nil)

		res, err := s.engine.Resolve(s.ctx, s.tenant, s.event())
		s.Require().NoError(err)
		s.Equal(models.StatusDuplicate, res.Status)
		s.Contains(res.Warnings, dErrors.CodeDuplicatePunch)
		s.Nil(res.EmployeeID)
		s.Equal(1.0, s.outcomes("duplicate"))
	})

	s.Run("unknown user is held pending without employee", func() {
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(true, nil)
		s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, "ZK-001", "42").Return(id.EmployeeID{}, sentinel.ErrNotFound)

		res, err := s.engine.Resolve(s.ctx, s.tenant, s.event())
		s.Require().NoError(err)
		s.Equal(models.StatusPending, res.Status)
		s.Nil(res.EmployeeID)
		s.Contains(res.Warnings, dErrors.CodeUnresolvedIdentity)
	})

	s.Run("low quality is accepted with a warning", func() {
		ev := s.event()
		ev.Quality = 40
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(true, nil)
		s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(s.employee, nil)

		res, err := s.engine.Resolve(s.ctx, s.tenant, ev)
		s.Require().NoError(err)
		s.NotNil(res.EmployeeID)
		s.Equal([]dErrors.Code{dErrors.CodeLowVerificationQuality}, res.Warnings)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.LowQuality))
	})

	s.Run("quality at threshold carries no warning", func() {
		ev := s.event()
		ev.Quality = 60
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(true, nil)
		s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(s.employee, nil)

		res, err := s.engine.Resolve(s.ctx, s.tenant, ev)
		s.Require().NoError(err)
		s.Empty(res.Warnings)
	})
}

func (s *EngineSuite) TestResolveDependencyFailures() {
	s.Run("dedup store failure fails the punch", func() {
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

		res, err := s.engine.Resolve(s.ctx, s.tenant, s.event())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.Equal(models.StatusFailed, res.Status)
	})

	s.Run("registry failure releases the fingerprint", func() {
		ev := s.event()
		fp := Fingerprint(ev, time.Minute)
		gomock.InOrder(
			s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, fp, gomock.Any()).Return(true, nil),
			s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(id.EmployeeID{}, errors.New("503")),
			s.fingerprints.EXPECT().Release(gomock.Any(), s.tenant, fp).Return(nil),
		)

		res, err := s.engine.Resolve(s.ctx, s.tenant, ev)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
		s.Equal(models.StatusFailed, res.Status)
		s.Nil(res.EmployeeID)
	})

	s.Run("release failure is logged and the original error returned", func() {
		s.fingerprints.EXPECT().Claim(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(true, nil)
		s.registry.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(id.EmployeeID{}, errors.New("503"))
		s.fingerprints.EXPECT().Release(gomock.Any(), s.tenant, gomock.Any()).Return(errors.New("redis down"))

		_, err := s.engine.Resolve(s.ctx, s.tenant, s.event())
		s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
	})
}

func (s *EngineSuite) TestResolvePending() {
	pending := func() *models.Resolved {
		return &models.Resolved{
			Event:    models.Event{ID: id.NewPunchID(), TenantID: s.tenant, Type: models.TypeCheckIn},
			Status:   models.StatusPending,
			Warnings: []dErrors.Code{dErrors.CodeUnresolvedIdentity},
		}
	}

	s.Run("assigns the employee", func() {
		p := pending()
		s.punches.EXPECT().Get(gomock.Any(), s.tenant, p.ID).Return(p, nil)

		res, err := s.engine.ResolvePending(s.ctx, s.tenant, p.ID, s.employee)
		s.Require().NoError(err)
		s.Equal(s.employee, *res.EmployeeID)
		s.Equal(models.StatusPending, res.Status)
	})

	s.Run("missing employee id", func() {
		_, err := s.engine.ResolvePending(s.ctx, s.tenant, id.NewPunchID(), id.EmployeeID{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown punch", func() {
		s.punches.EXPECT().Get(gomock.Any(), s.tenant, gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.engine.ResolvePending(s.ctx, s.tenant, id.NewPunchID(), s.employee)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("terminal punch cannot be resolved", func() {
		p := pending()
		p.Status = models.StatusProcessed
		s.punches.EXPECT().Get(gomock.Any(), s.tenant, p.ID).Return(p, nil)
		_, err := s.engine.ResolvePending(s.ctx, s.tenant, p.ID, s.employee)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("already resolved punch cannot be reassigned", func() {
		p := pending()
		other := id.EmployeeID(uuid.New())
		p.EmployeeID = &other
		s.punches.EXPECT().Get(gomock.Any(), s.tenant, p.ID).Return(p, nil)
		_, err := s.engine.ResolvePending(s.ctx, s.tenant, p.ID, s.employee)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
