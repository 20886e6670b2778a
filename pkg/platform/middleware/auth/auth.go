package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "timekeep/pkg/domain"
	"timekeep/pkg/requestcontext"
)

// Principal is who a verified token speaks for.
type Principal struct {
	TenantID id.TenantID
	Actor    string
}

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*Principal, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireTenant verifies the bearer token and scopes the request to the
// token's tenant and subject. Every downstream read and write uses that
// tenant; nothing in the request body can override it.
func RequireTenant(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				// browsers cannot set headers on a websocket upgrade
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			principal, err := verifier.VerifyToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithTenantID(ctx, principal.TenantID)
			ctx = requestcontext.WithActor(ctx, principal.Actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
