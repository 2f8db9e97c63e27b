package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// RoutePatternFromContext returns the chi route pattern matched for the
// request, e.g. "/api/quote/{id}". It is empty until routing has run and for
// unmatched paths.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
