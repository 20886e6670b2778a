package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"timekeep/internal/attendance/models"
	"timekeep/internal/attendance/service/mocks"
	"timekeep/internal/attendance/store"
	auditmodels "timekeep/internal/audit/models"
	"timekeep/internal/notify"
	punchmodels "timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/sentinel"
	"timekeep/pkg/requestcontext"
)

//go:generate mockgen -source=builder.go -destination=mocks/mocks.go -package=mocks ShiftLookup,Auditor

type recordingSink struct{ events []notify.Event }

func (r *recordingSink) TryEnqueue(e notify.Event) bool {
	r.events = append(r.events, e)
	return true
}

type BuilderSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	store    *store.InMemoryStore
	shifts   *mocks.MockShiftLookup
	auditor  *mocks.MockAuditor
	events   *recordingSink
	metrics  *Metrics
	builder  *Builder
	tenant   id.TenantID
	employee id.EmployeeID
	day      time.Time
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.shifts = mocks.NewMockShiftLookup(s.ctrl)
	s.auditor = mocks.NewMockAuditor(s.ctrl)
	s.events = &recordingSink{}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.tenant = id.TenantID(uuid.New())
	s.employee = id.EmployeeID(uuid.New())
	s.day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.day.Add(20*time.Hour))

	var err error
	s.builder, err = New(s.store, s.shifts, s.auditor,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithEvents(s.events),
	)
	s.Require().NoError(err)
}

func (s *BuilderSuite) at(h, m int) time.Time {
	return s.day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func (s *BuilderSuite) punch(t punchmodels.Type, at time.Time) *punchmodels.Resolved {
	employee := s.employee
	return &punchmodels.Resolved{
		Event: punchmodels.Event{
			ID:        id.NewPunchID(),
			TenantID:  s.tenant,
			PunchTime: at,
			Type:      t,
		},
		EmployeeID: &employee,
		Status:     punchmodels.StatusPending,
	}
}

func (s *BuilderSuite) standardShift() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, s.employee, s.day).
		Return(&models.Shift{Start: s.at(9, 0), End: s.at(17, 0)}, nil).AnyTimes()
}

func (s *BuilderSuite) apply(t punchmodels.Type, at time.Time) (*models.Mutation, error) {
	return s.builder.Apply(s.ctx, s.tenant, s.punch(t, at))
}

func (s *BuilderSuite) TestNew() {
	_, err := New(nil, s.shifts, s.auditor)
	s.Error(err)
}

func (s *BuilderSuite) TestCheckInThenCheckOut() {
	s.standardShift()

	m, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 10))
	s.Require().NoError(err)
	s.Equal(models.MutationCreated, m.Kind)
	s.Equal(models.StatusCheckedIn, m.Span.Status)
	s.Equal(10, m.Span.LateMinutes)
	s.Equal(s.day, m.Span.Date)

	_, err = s.apply(punchmodels.TypeBreakStart, s.at(12, 0))
	s.Require().NoError(err)
	m, err = s.apply(punchmodels.TypeBreakEnd, s.at(12, 30))
	s.Require().NoError(err)
	s.Equal(models.MutationBreak, m.Kind)
	s.Equal(30*time.Minute, m.Span.BreakTime)
	s.Equal(10, m.Span.LateMinutes, "break punches keep punctuality")

	m, err = s.apply(punchmodels.TypeCheckOut, s.at(18, 40))
	s.Require().NoError(err)
	s.Equal(models.MutationCompleted, m.Kind)
	s.Equal(models.StatusCompleted, m.Span.Status)
	s.Equal(9*time.Hour, m.Span.Working)
	s.Equal(time.Hour, m.Span.Overtime)
	s.Empty(m.Warnings)

	stored, err := s.store.Get(s.ctx, s.tenant, m.Span.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, stored.Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Mutations.WithLabelValues("completed")))
}

func (s *BuilderSuite) TestWorkingHoursProperty() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).AnyTimes()
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 50; i++ {
		s.employee = id.EmployeeID(uuid.New())
		in := s.at(6, r.IntN(180))
		breakStart := in.Add(time.Duration(30+r.IntN(180)) * time.Minute)
		breakLen := time.Duration(r.IntN(90)) * time.Minute
		out := breakStart.Add(breakLen + time.Duration(r.IntN(300))*time.Minute)

		_, err := s.apply(punchmodels.TypeCheckIn, in)
		s.Require().NoError(err)
		_, err = s.apply(punchmodels.TypeBreakStart, breakStart)
		s.Require().NoError(err)
		_, err = s.apply(punchmodels.TypeBreakEnd, breakStart.Add(breakLen))
		s.Require().NoError(err)
		m, err := s.apply(punchmodels.TypeCheckOut, out)
		s.Require().NoError(err)

		s.Equal(out.Sub(in)-breakLen, m.Span.Working)
		s.Equal(models.StatusCompleted, m.Span.Status)
	}
}

func (s *BuilderSuite) TestDuplicateCheckInKeepsFirst() {
	s.standardShift()
	first, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)

	m, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 30))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateCheckIn))
	s.Equal(models.MutationNone, m.Kind)
	s.Contains(m.Warnings, dErrors.CodeDuplicateCheckIn)

	open, err := s.store.FindOpen(s.ctx, s.tenant, s.employee, s.day)
	s.Require().NoError(err)
	s.Equal(first.Span.ID, open.ID)
	s.Equal(s.at(9, 0), open.CheckIn)
}

func (s *BuilderSuite) TestCheckOutWithoutCheckIn() {
	m, err := s.apply(punchmodels.TypeCheckOut, s.at(17, 0))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoCheckIn))
	s.Equal(models.MutationNone, m.Kind)
	s.Nil(m.Span)

	_, err = s.store.FindOpen(s.ctx, s.tenant, s.employee, s.day)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues(string(dErrors.CodeNoCheckIn))))
}

func (s *BuilderSuite) TestSequenceViolations() {
	s.standardShift()
	_, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)

	s.Run("break end without start", func() {
		_, err := s.apply(punchmodels.TypeBreakEnd, s.at(12, 0))
		s.True(dErrors.HasCode(err, dErrors.CodeSequenceViolation))
	})

	s.Run("second break start while one runs", func() {
		_, err := s.apply(punchmodels.TypeBreakStart, s.at(12, 0))
		s.Require().NoError(err)
		_, err = s.apply(punchmodels.TypeBreakStart, s.at(12, 5))
		s.True(dErrors.HasCode(err, dErrors.CodeSequenceViolation))
	})

	s.Run("check-out before check-in", func() {
		_, err := s.apply(punchmodels.TypeCheckOut, s.at(8, 0))
		s.True(dErrors.HasCode(err, dErrors.CodeSequenceViolation))
	})

	s.Run("break without open span", func() {
		s.employee = id.EmployeeID(uuid.New())
		_, err := s.apply(punchmodels.TypeBreakStart, s.at(12, 0))
		s.True(dErrors.HasCode(err, dErrors.CodeNoCheckIn))
	})
}

func (s *BuilderSuite) TestCheckOutClosesRunningBreak() {
	s.standardShift()
	_, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)
	_, err = s.apply(punchmodels.TypeBreakStart, s.at(16, 0))
	s.Require().NoError(err)

	m, err := s.apply(punchmodels.TypeCheckOut, s.at(17, 0))
	s.Require().NoError(err)
	s.Contains(m.Warnings, dErrors.CodeOpenBreakClosed)
	s.Equal(time.Hour, m.Span.BreakTime)
	s.Equal(7*time.Hour, m.Span.Working)
}

func (s *BuilderSuite) TestShiftUnavailableStillCompletes() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, s.employee, s.day).Return(nil, errors.New("scheduler down")).Times(2)

	m, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)
	s.Contains(m.Warnings, dErrors.CodeShiftUnavailable)

	m, err = s.apply(punchmodels.TypeCheckOut, s.at(19, 0))
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, m.Span.Status)
	s.Equal(10*time.Hour, m.Span.Working)
	s.Zero(m.Span.Overtime)
	s.Contains(m.Warnings, dErrors.CodeShiftUnavailable)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ShiftFallbacks))
}

func (s *BuilderSuite) TestProcessedPunchIsNoOp() {
	p := s.punch(punchmodels.TypeCheckIn, s.at(9, 0))
	p.Status = punchmodels.StatusProcessed

	m, err := s.builder.Apply(s.ctx, s.tenant, p)
	s.Require().NoError(err)
	s.Equal(models.MutationNone, m.Kind)
	_, err = s.store.FindOpen(s.ctx, s.tenant, s.employee, s.day)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *BuilderSuite) TestUnresolvedPunchIsRejected() {
	p := s.punch(punchmodels.TypeCheckIn, s.at(9, 0))
	p.EmployeeID = nil
	_, err := s.builder.Apply(s.ctx, s.tenant, p)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BuilderSuite) TestSweepIncomplete() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).AnyTimes()

	open, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)
	_, err = s.apply(punchmodels.TypeBreakStart, s.at(13, 0))
	s.Require().NoError(err)

	s.employee = id.EmployeeID(uuid.New())
	_, err = s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)
	_, err = s.apply(punchmodels.TypeCheckOut, s.at(17, 0))
	s.Require().NoError(err)

	s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec auditmodels.Record) (*auditmodels.Entry, error) {
			s.Equal(auditmodels.ActionAttendanceIncomplete, rec.Action)
			s.Equal(open.Span.ID.String(), rec.EntityID)
			return &auditmodels.Entry{}, nil
		})

	swept, err := s.builder.SweepIncomplete(s.ctx, s.tenant, s.day)
	s.Require().NoError(err)
	s.Require().Len(swept, 1)
	s.Equal(models.StatusIncomplete, swept[0].Status)
	s.Empty(swept[0].Breaks, "running break is discarded")
	s.Require().Len(s.events.events, 1)
	s.Equal(notify.EventAttendanceUpdated, s.events.events[0].Type)

	again, err := s.builder.SweepIncomplete(s.ctx, s.tenant, s.day)
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *BuilderSuite) TestSweepAuditFailureIsReported() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).AnyTimes()
	_, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)

	writeErr := dErrors.New(dErrors.CodeAuditWriteFailed, "audit write failed")
	s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, writeErr)

	swept, err := s.builder.SweepIncomplete(s.ctx, s.tenant, s.day)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditWriteFailed))
	s.Empty(swept)
	s.Empty(s.events.events)

	open, err := s.store.FindOpen(s.ctx, s.tenant, s.employee, s.day)
	s.Require().NoError(err, "span change rolls back with its audit entry")
	s.Equal(models.StatusCheckedIn, open.Status)
}

func (s *BuilderSuite) TestSpansArePerWorkDate() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).AnyTimes()
	nextDay := s.day.AddDate(0, 0, 1)

	first, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)

	second, err := s.apply(punchmodels.TypeCheckIn, nextDay.Add(9*time.Hour))
	s.Require().NoError(err, "a day left open does not block the next day's check-in")
	s.Equal(models.MutationCreated, second.Kind)
	s.NotEqual(first.Span.ID, second.Span.ID)
	s.Equal(nextDay, second.Span.Date)

	out, err := s.apply(punchmodels.TypeCheckOut, nextDay.Add(17*time.Hour))
	s.Require().NoError(err)
	s.Equal(second.Span.ID, out.Span.ID)
	s.Equal(8*time.Hour, out.Span.Working)

	stale, err := s.store.FindOpen(s.ctx, s.tenant, s.employee, s.day)
	s.Require().NoError(err, "the earlier day stays open for the sweep")
	s.Equal(first.Span.ID, stale.ID)

	_, err = s.apply(punchmodels.TypeCheckOut, s.day.AddDate(0, 0, 2).Add(time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeNoCheckIn), "a check-out never reaches back into another day")
}

func (s *BuilderSuite) TestCorrect() {
	s.standardShift()
	_, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 30))
	s.Require().NoError(err)
	m, err := s.apply(punchmodels.TypeCheckOut, s.at(17, 0))
	s.Require().NoError(err)

	approval := id.NewEntryID()
	s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec auditmodels.Record) (*auditmodels.Entry, error) {
			s.Equal(auditmodels.ActionAttendanceCorrected, rec.Action)
			s.Equal(&approval, rec.RefersTo)
			s.Equal("badge reader offline", rec.Details[auditmodels.DetailReason])
			return &auditmodels.Entry{}, nil
		})

	in := s.at(9, 0)
	corrected, err := s.builder.Correct(s.ctx, s.tenant, m.Span.ID, models.Correction{
		CheckIn:  &in,
		Reason:   "badge reader offline",
		RefersTo: &approval,
	})
	s.Require().NoError(err)
	s.Equal(8*time.Hour, corrected.Working)
	s.Zero(corrected.LateMinutes)

	s.Run("reason required", func() {
		_, err := s.builder.Correct(s.ctx, s.tenant, m.Span.ID, models.Correction{CheckIn: &in})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("inverted times rejected without audit", func() {
		out := s.at(8, 0)
		_, err := s.builder.Correct(s.ctx, s.tenant, m.Span.ID, models.Correction{CheckOut: &out, Reason: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown span", func() {
		_, err := s.builder.Correct(s.ctx, s.tenant, id.NewSpanID(), models.Correction{Reason: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *BuilderSuite) TestCorrectClosesIncompleteSpan() {
	s.shifts.EXPECT().Lookup(gomock.Any(), s.tenant, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).AnyTimes()
	s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(&auditmodels.Entry{}, nil).Times(2)

	_, err := s.apply(punchmodels.TypeCheckIn, s.at(9, 0))
	s.Require().NoError(err)
	swept, err := s.builder.SweepIncomplete(s.ctx, s.tenant, s.day)
	s.Require().NoError(err)
	s.Require().Len(swept, 1)

	out := s.at(17, 0)
	corrected, err := s.builder.Correct(s.ctx, s.tenant, swept[0].ID, models.Correction{CheckOut: &out, Reason: "forgot to punch out"})
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, corrected.Status)
	s.Equal(8*time.Hour, corrected.Working)
}
