package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"timekeep/internal/punch/handler/mocks"
	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Gateway

type PunchHandlerSuite struct {
	suite.Suite
	gateway *mocks.MockGateway
	router  chi.Router
	tenant  id.TenantID
}

func TestPunchHandlerSuite(t *testing.T) {
	suite.Run(t, new(PunchHandlerSuite))
}

func (s *PunchHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.gateway = mocks.NewMockGateway(ctrl)
	s.tenant = id.TenantID(uuid.New())

	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTenantID(r.Context(), s.tenant)))
		})
	})
	New(s.gateway, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *PunchHandlerSuite) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, target, reader))
	return w
}

func (s *PunchHandlerSuite) capture() models.CaptureRequest {
	return models.CaptureRequest{
		DeviceSerial: "ZK-001",
		DeviceUserID: "42",
		PunchTime:    time.Date(2026, 3, 2, 9, 2, 15, 0, time.UTC),
		PunchType:    models.TypeCheckIn,
		Quality:      85,
	}
}

func (s *PunchHandlerSuite) TestSubmit() {
	s.Run("accepted punch is 201", func() {
		s.gateway.EXPECT().Submit(gomock.Any(), s.capture()).Return(&models.Result{
			Success: true, Message: "punch processed", PunchID: "p-1", Status: models.StatusProcessed,
			Warnings: []dErrors.Code{}, Errors: []models.FieldError{},
		})

		w := s.do(http.MethodPost, "/v1/devices/punches", s.capture())
		s.Equal(http.StatusCreated, w.Code)
		var got models.Result
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&got))
		s.True(got.Success)
		s.Equal(models.StatusProcessed, got.Status)
	})

	s.Run("validation failure is 400 with the result body", func() {
		s.gateway.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(&models.Result{
			Message: "validation failed",
			Errors:  []models.FieldError{{Field: "quality", Code: dErrors.CodeValidation, Message: "quality must be between 0 and 100"}},
		})

		w := s.do(http.MethodPost, "/v1/devices/punches", s.capture())
		s.Equal(http.StatusBadRequest, w.Code)
		s.Contains(w.Body.String(), `"field":"quality"`)
	})

	s.Run("no check-in is 409", func() {
		s.gateway.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(models.Rejected(dErrors.CodeNoCheckIn, "no open attendance span to check out"))

		w := s.do(http.MethodPost, "/v1/devices/punches", s.capture())
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("dependency failure is 503", func() {
		s.gateway.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(models.Rejected(dErrors.CodeDependencyUnavailable, "device registry unavailable"))

		w := s.do(http.MethodPost, "/v1/devices/punches", s.capture())
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})

	s.Run("malformed body never reaches the gateway", func() {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices/punches", strings.NewReader("{")))
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *PunchHandlerSuite) TestBatch() {
	s.Run("per-item results", func() {
		reqs := []models.CaptureRequest{s.capture(), s.capture()}
		s.gateway.EXPECT().SubmitBatch(gomock.Any(), reqs).Return(&models.BatchResponse{
			Results:  []*models.Result{{Success: true}, models.Rejected(dErrors.CodeSequenceViolation, "break end without break start")},
			Accepted: 1,
			Rejected: 1,
		})

		w := s.do(http.MethodPost, "/v1/devices/punches/batch", models.BatchRequest{Punches: reqs})
		s.Equal(http.StatusOK, w.Code)
		var got models.BatchResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&got))
		s.Equal(1, got.Accepted)
		s.Equal(1, got.Rejected)
		s.Len(got.Results, 2)
	})

	s.Run("empty batch", func() {
		w := s.do(http.MethodPost, "/v1/devices/punches/batch", models.BatchRequest{})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("oversized batch", func() {
		reqs := make([]models.CaptureRequest, maxBatch+1)
		w := s.do(http.MethodPost, "/v1/devices/punches/batch", models.BatchRequest{Punches: reqs})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *PunchHandlerSuite) TestPending() {
	s.gateway.EXPECT().ListPending(gomock.Any(), 5).Return(nil, nil)

	w := s.do(http.MethodGet, "/v1/punches/pending?limit=5", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"punches":[],"count":0}`, w.Body.String())

	w = s.do(http.MethodGet, "/v1/punches/pending?limit=x", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *PunchHandlerSuite) TestResolve() {
	punchID := id.NewPunchID()
	employeeID := id.EmployeeID(uuid.New())

	s.Run("resolved", func() {
		s.gateway.EXPECT().ResolvePending(gomock.Any(), punchID, employeeID).Return(&models.Result{
			Success: true, PunchID: punchID.String(), Status: models.StatusProcessed,
		})

		w := s.do(http.MethodPost, "/v1/punches/"+punchID.String()+"/resolve", models.ResolveRequest{EmployeeID: employeeID.String()})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("not pending", func() {
		s.gateway.EXPECT().ResolvePending(gomock.Any(), punchID, employeeID).Return(models.Rejected(dErrors.CodeConflict, "punch is not awaiting identity resolution"))

		w := s.do(http.MethodPost, "/v1/punches/"+punchID.String()+"/resolve", models.ResolveRequest{EmployeeID: employeeID.String()})
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("bad ids", func() {
		w := s.do(http.MethodPost, "/v1/punches/nope/resolve", models.ResolveRequest{EmployeeID: employeeID.String()})
		s.Equal(http.StatusBadRequest, w.Code)

		w = s.do(http.MethodPost, "/v1/punches/"+punchID.String()+"/resolve", models.ResolveRequest{EmployeeID: "nope"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
