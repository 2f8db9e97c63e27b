package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/catalog"
)

func TestCatalogHandlers(t *testing.T) {
	static := catalog.DefaultCatalog()
	h := &catalog.Handler{Lister: static, Lookup: static}

	t.Run("treatments by category", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Treatments(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/treatments?category=crowns", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []catalog.Treatment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		for _, tr := range body.Data {
			require.Equal(t, catalog.CategoryCrowns, tr.Category)
		}
	})

	t.Run("packages carry savings", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Packages(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/packages", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"savings":100.00`)
	})

	t.Run("item not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog/items/treatment/gold", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("kind", "treatment")
		rctx.URLParams.Add("id", "gold")
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		h.Item(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "ITEM_NOT_FOUND")
	})

	t.Run("addons", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.AddOns(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/addons", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "airport-transfer")
	})
}
