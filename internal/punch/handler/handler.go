package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"timekeep/internal/punch/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/httputil"
	"timekeep/pkg/requestcontext"
)

// maxBatch bounds one device sync.
const maxBatch = 500

// Gateway is the ingestion surface exposed to devices and operators.
type Gateway interface {
	Submit(ctx context.Context, req models.CaptureRequest) *models.Result
	SubmitBatch(ctx context.Context, reqs []models.CaptureRequest) *models.BatchResponse
	ResolvePending(ctx context.Context, punchID id.PunchID, employeeID id.EmployeeID) *models.Result
	ListPending(ctx context.Context, limit int) ([]*models.Resolved, error)
}

type Handler struct {
	gateway Gateway
	logger  *slog.Logger
}

func New(gateway Gateway, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, logger: logger}
}

// Register mounts the punch routes. r must already enforce tenant auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/devices/punches", h.handleSubmit)
	r.Post("/v1/devices/punches/batch", h.handleBatch)
	r.Get("/v1/punches/pending", h.handlePending)
	r.Post("/v1/punches/{id}/resolve", h.handleResolve)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[models.CaptureRequest](w, r, h.logger)
	if !ok {
		return
	}
	result := h.gateway.Submit(ctx, *req)
	if !result.Success {
		h.logger.InfoContext(ctx, "punch rejected",
			"request_id", requestcontext.RequestID(ctx),
			"device_serial", req.DeviceSerial,
			"punch_id", result.PunchID,
			"message", result.Message,
		)
	}
	httputil.WriteJSON(w, statusOf(result, http.StatusCreated), result)
}

// handleBatch always answers 200; each item carries its own outcome.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[models.BatchRequest](w, r, h.logger)
	if !ok {
		return
	}
	switch {
	case len(req.Punches) == 0:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "punches must not be empty"))
		return
	case len(req.Punches) > maxBatch:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "too many punches in one batch"))
		return
	}
	resp := h.gateway.SubmitBatch(ctx, req.Punches)
	h.logger.InfoContext(ctx, "punch batch processed",
		"request_id", requestcontext.RequestID(ctx),
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	punches, err := h.gateway.ListPending(ctx, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if punches == nil {
		punches = []*models.Resolved{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.PendingResponse{Punches: punches, Count: len(punches)})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	punchID, err := id.ParsePunchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid punch id"))
		return
	}
	req, ok := httputil.DecodeJSON[models.ResolveRequest](w, r, h.logger)
	if !ok {
		return
	}
	employeeID, err := id.ParseEmployeeID(req.EmployeeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "employee_id must be a UUID"))
		return
	}

	result := h.gateway.ResolvePending(ctx, punchID, employeeID)
	if !result.Success {
		h.logger.WarnContext(ctx, "pending punch resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"punch_id", punchID,
			"message", result.Message,
		)
	}
	httputil.WriteJSON(w, statusOf(result, http.StatusOK), result)
}

// statusOf maps a failed result to the status of its first error. Success
// includes duplicates and held punches; the body says which.
func statusOf(result *models.Result, ok int) int {
	if result.Success {
		return ok
	}
	if len(result.Errors) == 0 {
		return http.StatusInternalServerError
	}
	return httputil.StatusFor(result.Errors[0].Code)
}
