package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/money"
	"github.com/noah-isme/smilequote/internal/resilience"
)

func newRemote(t *testing.T, handler http.Handler) *catalog.RemoteClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &catalog.RemoteClient{
		HTTP:    resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 2, BaseBackoff: time.Millisecond},
		BaseURL: srv.URL + "/",
	}
}

func TestRemoteClientGet(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/catalog/treatments/{id}", func(w http.ResponseWriter, req *http.Request) {
		switch chi.URLParam(req, "id") {
		case "porcelain-veneer":
			_, _ = w.Write([]byte(`{"id":"porcelain-veneer","name":"Porcelain Veneer","unitPrice":450,"category":"veneers"}`))
		case "no-price":
			_, _ = w.Write([]byte(`{"id":"no-price","name":"Mystery"}`))
		default:
			http.NotFound(w, req)
		}
	})
	client := newRemote(t, r)
	ctx := context.Background()

	e, err := client.Get(ctx, catalog.KindTreatment, "porcelain-veneer")
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(450), e.UnitPrice)
	require.Equal(t, catalog.CategoryVeneers, e.Category)

	_, err = client.Get(ctx, catalog.KindTreatment, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = client.Get(ctx, catalog.KindTreatment, "no-price")
	require.ErrorIs(t, err, catalog.ErrInvalidItem)
}

func TestRemoteClientUpstreamFailure(t *testing.T) {
	client := newRemote(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := client.Get(context.Background(), catalog.KindAddOn, "city-tour")
	require.Error(t, err)
	require.NotErrorIs(t, err, catalog.ErrNotFound)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
}
