package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/money"
	"github.com/noah-isme/smilequote/internal/resilience"
)

// RemoteClient resolves items against an external catalog service exposing
// GET {base}/catalog/{kind}s/{id}.
type RemoteClient struct {
	HTTP    resilience.HTTPClient
	BaseURL string
}

type remoteItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	UnitPrice   money.Money `json:"unitPrice"`
	Price       money.Money `json:"price"`
	Category    string      `json:"category"`
}

// Get implements Lookup. A 404 maps to ErrNotFound; a missing price is an
// error rather than a default.
func (c *RemoteClient) Get(ctx context.Context, kind Kind, id string) (Entry, error) {
	switch kind {
	case KindTreatment, KindPackage, KindAddOn:
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/catalog/" + string(kind) + "s/" + url.PathEscape(id)
	var item remoteItem
	if err := c.HTTP.GetJSON(ctx, endpoint, &item); err != nil {
		if resilience.IsStatus(err, http.StatusNotFound) {
			return Entry{}, notFound(kind, id)
		}
		return Entry{}, common.ErrUpstreamUnavailable(fmt.Errorf("catalog: remote %s %q: %w", kind, id, err))
	}
	price := item.UnitPrice
	if price == 0 {
		price = item.Price
	}
	e := Entry{
		Kind:        kind,
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		UnitPrice:   price,
		Category:    Category(item.Category),
	}
	if e.ID == "" {
		e.ID = id
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
