// Package catalog resolves treatments, packages and add-ons to canonical
// prices. Lookups never fall back to a placeholder price.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/smilequote/internal/money"
)

// Kind identifies which catalog collection an item belongs to.
type Kind string

const (
	KindTreatment Kind = "treatment"
	KindPackage   Kind = "package"
	KindAddOn     Kind = "addon"
)

// Category tags a treatment for browsing.
type Category string

const (
	CategoryImplants     Category = "implants"
	CategoryVeneers      Category = "veneers"
	CategoryCrowns       Category = "crowns"
	CategoryWhitening    Category = "whitening"
	CategoryOrthodontics Category = "orthodontics"
	CategoryGeneral      Category = "general"
	CategorySurgery      Category = "surgery"
)

var (
	// ErrNotFound is returned when an identifier does not exist in the catalog.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrUnknownKind is returned for an item kind outside treatment/package/addon.
	ErrUnknownKind = errors.New("catalog: unknown item kind")
	// ErrInvalidItem is returned when a backend yields an entry without a usable price.
	ErrInvalidItem = errors.New("catalog: invalid item")
)

// ParseKind normalises a kind string. An empty value means treatment.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindTreatment:
		return KindTreatment, nil
	case KindPackage:
		return KindPackage, nil
	case KindAddOn, "add-on", "add_on":
		return KindAddOn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// Treatment is a single clinical procedure.
type Treatment struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	UnitPrice   money.Money `json:"unitPrice"`
	Category    Category    `json:"category"`
}

// PackageItem is one constituent of a bundle.
type PackageItem struct {
	TreatmentID       string      `json:"treatmentId"`
	Quantity          int         `json:"quantity"`
	StandardUnitPrice money.Money `json:"standardUnitPrice"`
}

// Package is a pre-negotiated bundle. PackagePrice is authoritative and is
// never re-derived from the included items.
type Package struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Included     []PackageItem `json:"includedTreatments"`
	PackagePrice money.Money   `json:"packagePrice"`
}

// StandardTotal is what the included treatments would cost individually.
func (p Package) StandardTotal() money.Money {
	var total money.Money
	for _, it := range p.Included {
		total += it.StandardUnitPrice * money.Money(it.Quantity)
	}
	return total
}

// Savings is StandardTotal minus PackagePrice, floored at zero.
func (p Package) Savings() money.Money {
	if s := p.StandardTotal() - p.PackagePrice; s > 0 {
		return s
	}
	return 0
}

// AddOn is a travel or comfort extra. It never participates in bundling.
type AddOn struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	UnitPrice   money.Money `json:"unitPrice"`
}

// Entry is the resolved projection consumed by the ledger.
type Entry struct {
	Kind        Kind        `json:"kind"`
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	UnitPrice   money.Money `json:"unitPrice"`
	Category    Category    `json:"category,omitempty"`
}

// Validate rejects entries that would otherwise be priced by guesswork.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidItem)
	}
	if e.UnitPrice <= 0 {
		return fmt.Errorf("%w: %s %q has non-positive price", ErrInvalidItem, e.Kind, e.ID)
	}
	return nil
}

// Lookup resolves a single item by kind and id.
type Lookup interface {
	Get(ctx context.Context, kind Kind, id string) (Entry, error)
}

// Lister exposes browse listings.
type Lister interface {
	Treatments(ctx context.Context) ([]Treatment, error)
	Packages(ctx context.Context) ([]Package, error)
	AddOns(ctx context.Context) ([]AddOn, error)
}

// Source is a backend that supports both lookups and listings.
type Source interface {
	Lookup
	Lister
}

func notFound(kind Kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func treatmentEntry(t Treatment) Entry {
	return Entry{Kind: KindTreatment, ID: t.ID, Name: t.Name, Description: t.Description, UnitPrice: t.UnitPrice, Category: t.Category}
}

func packageEntry(p Package) Entry {
	return Entry{Kind: KindPackage, ID: p.ID, Name: p.Name, Description: p.Description, UnitPrice: p.PackagePrice}
}

func addOnEntry(a AddOn) Entry {
	return Entry{Kind: KindAddOn, ID: a.ID, Name: a.Name, Description: a.Description, UnitPrice: a.UnitPrice}
}
