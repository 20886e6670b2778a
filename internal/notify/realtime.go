package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	dErrors "timekeep/pkg/domain-errors"
	"timekeep/pkg/platform/httputil"
	"timekeep/pkg/requestcontext"
)

const writeTimeout = 5 * time.Second

// RealtimeHandler streams the caller's tenant events over a websocket.
type RealtimeHandler struct {
	hub            *Hub
	originPatterns []string
	logger         *slog.Logger
}

func NewRealtimeHandler(hub *Hub, originPatterns []string, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, originPatterns: originPatterns, logger: logger}
}

// Register mounts the realtime route. r must already enforce tenant auth.
func (h *RealtimeHandler) Register(r chi.Router) {
	r.Get("/v1/realtime", h.handleRealtime)
}

func (h *RealtimeHandler) handleRealtime(w http.ResponseWriter, r *http.Request) {
	tenantID := requestcontext.TenantID(r.Context())
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant is required"))
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.hub.Subscribe(tenantID)
	defer sub.Close()
	h.logger.InfoContext(ctx, "realtime subscriber connected", "tenant_id", tenantID)

	// CloseRead discards client frames and cancels ctx when the peer goes away.
	ctx = conn.CloseRead(ctx)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				h.logger.InfoContext(ctx, "realtime subscriber dropped", "tenant_id", tenantID, "error", err)
				_ = conn.Close(websocket.StatusPolicyViolation, "write failed")
				return
			}
		}
	}
}
