package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"timekeep/internal/audit/models"
	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/httputil"
	"timekeep/pkg/requestcontext"
)

// Service defines the audit operations exposed over HTTP.
type Service interface {
	Append(ctx context.Context, rec models.Record) (*models.Entry, error)
	Verify(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (bool, error)
	VerifyRange(ctx context.Context, q models.Query) (*models.VerifyReport, error)
	Query(ctx context.Context, q models.Query) ([]*models.Entry, error)
}

// Handler serves the read-only trail plus the append endpoint platform
// services use to record their own actions. There is no update or delete.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the audit routes. r must already enforce tenant auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/audit/entries", h.handleList)
	r.Post("/v1/audit/entries", h.handleAppend)
	r.Get("/v1/audit/entries/{id}/verify", h.handleVerify)
	r.Post("/v1/audit/verify", h.handleVerifyRange)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q.TenantID = requestcontext.TenantID(ctx)

	entries, err := h.service.Query(ctx, q)
	if err != nil {
		h.logger.WarnContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.EntriesResponse{Entries: entries, Count: len(entries)})
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[models.AppendRequest](w, r, h.logger)
	if !ok {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.Append(ctx, req.Record(requestcontext.TenantID(ctx)))
	if err != nil {
		h.logger.ErrorContext(ctx, "audit append failed",
			"request_id", requestcontext.RequestID(ctx),
			"action", req.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entryID, err := id.ParseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry id"))
		return
	}
	ok, err := h.service.Verify(ctx, requestcontext.TenantID(ctx), entryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.VerifyResponse{EntryID: entryID, Verified: ok})
}

func (h *Handler) handleVerifyRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q.TenantID = requestcontext.TenantID(ctx)

	report, err := h.service.VerifyRange(ctx, q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func parseQuery(r *http.Request) (models.Query, error) {
	values := r.URL.Query()
	q := models.Query{Actor: values.Get("actor")}

	var err error
	if v := values.Get("from"); v != "" {
		if q.From, err = time.Parse(time.RFC3339, v); err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "from must be RFC3339")
		}
	}
	if v := values.Get("to"); v != "" {
		if q.To, err = time.Parse(time.RFC3339, v); err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "to must be RFC3339")
		}
	}
	for _, raw := range values["action"] {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				q.Actions = append(q.Actions, models.Action(a))
			}
		}
	}
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
		}
	}
	if v := values.Get("offset"); v != "" {
		if q.Offset, err = strconv.Atoi(v); err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "offset must be an integer")
		}
	}
	return q, nil
}
