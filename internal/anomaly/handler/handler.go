package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"timekeep/internal/anomaly/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/httputil"
	"timekeep/pkg/requestcontext"
)

// Service is the operator view of anomaly signals.
type Service interface {
	Get(ctx context.Context, tenantID id.TenantID, signalID id.SignalID) (*models.Signal, error)
	List(ctx context.Context, q models.Query) ([]*models.Signal, error)
	Transition(ctx context.Context, tenantID id.TenantID, signalID id.SignalID, to models.Status, actor, note string) (*models.Signal, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the signal routes. r must already enforce tenant auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/anomaly/signals", h.handleList)
	r.Get("/v1/anomaly/signals/{id}", h.handleGet)
	r.Post("/v1/anomaly/signals/{id}/transitions", h.handleTransition)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()
	q := models.Query{
		TenantID: requestcontext.TenantID(ctx),
		Status:   models.Status(params.Get("status")),
		Type:     models.Type(params.Get("type")),
	}
	if q.Status != "" && !q.Status.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown status"))
		return
	}
	var err error
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
		return
	}
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer"))
		return
	}

	signals, err := h.service.List(ctx, q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if signals == nil {
		signals = []*models.Signal{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.SignalsResponse{Signals: signals, Count: len(signals)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := id.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	sig, err := h.service.Get(ctx, requestcontext.TenantID(ctx), signalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sig)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := id.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	req, ok := httputil.DecodeJSON[models.TransitionRequest](w, r, h.logger)
	if !ok {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sig, err := h.service.Transition(ctx, requestcontext.TenantID(ctx), signalID, req.Status, requestcontext.Actor(ctx), req.Note)
	if err != nil {
		h.logger.InfoContext(ctx, "signal transition rejected",
			"request_id", requestcontext.RequestID(ctx),
			"signal_id", signalID,
			"status", req.Status,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sig)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
