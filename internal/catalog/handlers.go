package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/money"
)

// Handler exposes public catalog browse endpoints.
type Handler struct {
	Lister Lister
	Lookup Lookup
}

// Treatments handles GET /api/catalog/treatments.
func (h *Handler) Treatments(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	rows, err := h.Lister.Treatments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := rows[:0]
		for _, t := range rows {
			if string(t.Category) == category {
				filtered = append(filtered, t)
			}
		}
		rows = filtered
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": nonNil(rows)})
}

// Packages handles GET /api/catalog/packages.
func (h *Handler) Packages(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	rows, err := h.Lister.Packages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type packageView struct {
		Package
		StandardTotal money.Money `json:"standardTotal"`
		Savings       money.Money `json:"savings"`
	}
	out := make([]packageView, 0, len(rows))
	for _, p := range rows {
		out = append(out, packageView{Package: p, StandardTotal: p.StandardTotal(), Savings: p.Savings()})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// AddOns handles GET /api/catalog/addons.
func (h *Handler) AddOns(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	rows, err := h.Lister.AddOns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": nonNil(rows)})
}

// Item handles GET /api/catalog/items/{kind}/{id}.
func (h *Handler) Item(w http.ResponseWriter, r *http.Request) {
	if h.Lookup == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.Lookup.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entry})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrUnknownKind):
		common.JSONError(w, http.StatusBadRequest, "INVALID_KIND", err.Error(), nil)
	default:
		common.WriteAppError(w, err)
	}
}
