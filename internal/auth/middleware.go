package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/common"
)

// Middleware attaches the verified principal to admin requests.
type Middleware struct {
	Verifier *Verifier
}

// RequireRole rejects requests without a valid token carrying one of roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Verifier == nil {
				common.JSONError(w, http.StatusServiceUnavailable, "AUTH_DISABLED", "admin authentication is not configured", nil)
				return
			}
			principal, err := m.Verifier.Parse(bearerToken(r))
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("admin_token_rejected")
				var appErr *common.AppError
				if errors.As(err, &appErr) {
					common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
					return
				}
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			if len(roles) > 0 && !principal.HasRole(roles...) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
