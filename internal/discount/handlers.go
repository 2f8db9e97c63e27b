package discount

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/smilequote/internal/common"
)

// Codes used in JSON error envelopes.
const (
	CodeNotFound = "PROMO_NOT_FOUND"
	CodeExpired  = "PROMO_EXPIRED"
)

// Message maps resolver errors to user-facing text. Not-found and expired
// stay distinguishable.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "This promo code has expired or is not currently active"
	case errors.Is(err, ErrNotFound):
		return "Invalid promo code"
	default:
		return "Promo codes are temporarily unavailable"
	}
}

// ErrorCode maps resolver errors to envelope codes and HTTP status.
func ErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, ErrExpired):
		return CodeExpired, http.StatusGone
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, http.StatusNotFound
	default:
		return "PROMO_UNAVAILABLE", http.StatusBadGateway
	}
}

// Invalidator drops a cached rule.
type Invalidator interface {
	Invalidate(ctx context.Context, code string) error
}

// Handler serves promo-code validation without touching any quote. Cache is
// nil when rules are not cached.
type Handler struct {
	Resolver *Resolver
	Cache    Invalidator
}

// Invalidate handles DELETE /api/admin/promo-codes/{code}/cache so a
// deactivated rule stops resolving before the cache entry expires.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	code := Normalize(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "code is required", nil)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(r.Context(), code); err != nil {
			common.JSONError(w, http.StatusBadGateway, "CACHE_UNAVAILABLE", "could not invalidate cached rule", nil)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles GET /api/promo-codes/validate?code=.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount resolver not configured", nil)
		return
	}
	code := r.URL.Query().Get("code")
	if Normalize(code) == "" {
		common.JSON(w, http.StatusBadRequest, map[string]any{"valid": false, "message": "code is required"})
		return
	}
	rule, err := h.Resolver.Resolve(r.Context(), code)
	if err != nil {
		status := http.StatusOK
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
			status = http.StatusBadGateway
		}
		errCode, _ := ErrorCode(err)
		common.JSON(w, status, map[string]any{"valid": false, "message": Message(err), "code": errCode})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"valid":     true,
		"message":   "Promo code is valid",
		"promotion": rule.Summarize(),
	})
}
