package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"timekeep/internal/attendance/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/httputil"
	"timekeep/pkg/requestcontext"
)

// Service is the slice of the state builder exposed over HTTP.
type Service interface {
	Get(ctx context.Context, tenantID id.TenantID, spanID id.SpanID) (*models.Span, error)
	Correct(ctx context.Context, tenantID id.TenantID, spanID id.SpanID, c models.Correction) (*models.Span, error)
	SweepIncomplete(ctx context.Context, tenantID id.TenantID, date time.Time) ([]*models.Span, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the attendance routes. r must already enforce tenant auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/attendance/spans/{id}", h.handleGet)
	r.Post("/v1/attendance/spans/{id}/corrections", h.handleCorrect)
	r.Post("/v1/attendance/sweep", h.handleSweep)
}

func spanID(r *http.Request) (id.SpanID, error) {
	spanID, err := id.ParseSpanID(chi.URLParam(r, "id"))
	if err != nil {
		return id.SpanID{}, dErrors.New(dErrors.CodeBadRequest, "invalid span id")
	}
	return spanID, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, err := spanID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sp, err := h.service.Get(ctx, requestcontext.TenantID(ctx), sid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewSpanResponse(sp))
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, err := spanID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[models.Correction](w, r, h.logger)
	if !ok {
		return
	}

	sp, err := h.service.Correct(ctx, requestcontext.TenantID(ctx), sid, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "attendance correction failed",
			"request_id", requestcontext.RequestID(ctx),
			"span_id", sid,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewSpanResponse(sp))
}

// handleSweep is called by the external end-of-day scheduler.
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[models.SweepRequest](w, r, h.logger)
	if !ok {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "date must be YYYY-MM-DD"))
		return
	}

	spans, err := h.service.SweepIncomplete(ctx, requestcontext.TenantID(ctx), date)
	if err != nil {
		h.logger.ErrorContext(ctx, "end-of-day sweep failed",
			"request_id", requestcontext.RequestID(ctx),
			"date", req.Date,
			"swept", len(spans),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := models.SweepResponse{Date: req.Date, Count: len(spans), Spans: make([]*models.SpanResponse, 0, len(spans))}
	for _, sp := range spans {
		resp.Spans = append(resp.Spans, models.NewSpanResponse(sp))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
