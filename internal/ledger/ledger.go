// Package ledger holds the ordered line items of a quote. Every operation
// returns a new Ledger and leaves its input untouched.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/money"
)

var (
	// ErrItemNotFound is returned by SetQuantity when the line is absent.
	ErrItemNotFound = errors.New("ledger: item not in ledger")
	// ErrInvalidQuantity is returned when adding fewer than one unit.
	ErrInvalidQuantity = errors.New("ledger: quantity must be at least 1")
	// ErrInvalidLine is returned when rehydrating a malformed line.
	ErrInvalidLine = errors.New("ledger: invalid line item")
)

// LineItem is one catalog item at a quantity. The line total is always derived.
type LineItem struct {
	ItemID    string       `json:"itemId"`
	Kind      catalog.Kind `json:"itemKind"`
	Name      string       `json:"name"`
	UnitPrice money.Money  `json:"unitPrice"`
	Quantity  int          `json:"quantity"`
}

// LineTotal is UnitPrice × Quantity.
func (li LineItem) LineTotal() money.Money {
	return li.UnitPrice * money.Money(li.Quantity)
}

// InstanceID identifies the line within a ledger as "<kind>:<itemId>".
func (li LineItem) InstanceID() string {
	return InstanceID(li.Kind, li.ItemID)
}

// InstanceID formats a line identifier.
func InstanceID(kind catalog.Kind, itemID string) string {
	return string(kind) + ":" + itemID
}

// ParseInstanceID splits a line identifier. A bare id is taken as a treatment.
func ParseInstanceID(value string) (catalog.Kind, string, error) {
	value = strings.TrimSpace(value)
	kindPart, id, found := strings.Cut(value, ":")
	if !found {
		kindPart, id = "", value
	}
	kind, err := catalog.ParseKind(kindPart)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", "", fmt.Errorf("%w: empty instance id", ErrInvalidLine)
	}
	return kind, strings.TrimSpace(id), nil
}

// Ledger is an immutable ordered collection of line items.
type Ledger struct {
	items []LineItem
}

// New rehydrates a ledger from stored lines. Duplicates, quantities below one
// and non-positive prices are rejected.
func New(items ...LineItem) (Ledger, error) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.UnitPrice <= 0 || it.ItemID == "" {
			return Ledger{}, fmt.Errorf("%w: %s", ErrInvalidLine, it.InstanceID())
		}
		if _, dup := seen[it.InstanceID()]; dup {
			return Ledger{}, fmt.Errorf("%w: duplicate %s", ErrInvalidLine, it.InstanceID())
		}
		seen[it.InstanceID()] = struct{}{}
	}
	return Ledger{items: append([]LineItem(nil), items...)}, nil
}

// Items returns a copy of the lines in insertion order.
func (l Ledger) Items() []LineItem {
	return append([]LineItem(nil), l.items...)
}

// Len is the number of distinct lines.
func (l Ledger) Len() int { return len(l.items) }

// Empty reports whether the ledger has no lines.
func (l Ledger) Empty() bool { return len(l.items) == 0 }

// Find returns the line for (kind, id).
func (l Ledger) Find(kind catalog.Kind, id string) (LineItem, bool) {
	if i := l.index(kind, id); i >= 0 {
		return l.items[i], true
	}
	return LineItem{}, false
}

func (l Ledger) index(kind catalog.Kind, id string) int {
	for i, it := range l.items {
		if it.Kind == kind && it.ItemID == id {
			return i
		}
	}
	return -1
}

// Add increments an existing line or, after a catalog lookup, appends a new
// one. Lines are matched by the requested id and by the id the catalog
// returns. A failed lookup returns the original ledger unchanged with the error.
func Add(ctx context.Context, lookup catalog.Lookup, l Ledger, kind catalog.Kind, id string, qty int) (Ledger, error) {
	if qty < 1 {
		return l, ErrInvalidQuantity
	}
	id = strings.TrimSpace(id)
	if i := l.index(kind, id); i >= 0 {
		next := l.Items()
		next[i].Quantity += qty
		return Ledger{items: next}, nil
	}
	entry, err := lookup.Get(ctx, kind, id)
	if err != nil {
		return l, err
	}
	// The catalog may answer with a canonical id that differs from the one
	// requested; an existing line under that id is incremented instead.
	if i := l.index(entry.Kind, entry.ID); i >= 0 {
		next := l.Items()
		next[i].Quantity += qty
		return Ledger{items: next}, nil
	}
	next := append(l.Items(), LineItem{
		ItemID:    entry.ID,
		Kind:      entry.Kind,
		Name:      entry.Name,
		UnitPrice: entry.UnitPrice,
		Quantity:  qty,
	})
	return Ledger{items: next}, nil
}

// Remove deletes the line for (kind, id). Absent lines are a no-op.
func Remove(l Ledger, kind catalog.Kind, id string) Ledger {
	i := l.index(kind, id)
	if i < 0 {
		return l
	}
	next := make([]LineItem, 0, len(l.items)-1)
	next = append(next, l.items[:i]...)
	next = append(next, l.items[i+1:]...)
	return Ledger{items: next}
}

// SetQuantity replaces a line's quantity; below one it removes the line.
func SetQuantity(l Ledger, kind catalog.Kind, id string, qty int) (Ledger, error) {
	i := l.index(kind, id)
	if i < 0 {
		return l, fmt.Errorf("%w: %s", ErrItemNotFound, InstanceID(kind, id))
	}
	if qty < 1 {
		return Remove(l, kind, id), nil
	}
	next := l.Items()
	next[i].Quantity = qty
	return Ledger{items: next}, nil
}

// Subtotal sums line totals. Nothing is cached.
func Subtotal(l Ledger) money.Money {
	var total money.Money
	for _, it := range l.items {
		total += it.LineTotal()
	}
	return total
}

// MarshalJSON encodes the ledger as its ordered list of lines.
func (l Ledger) MarshalJSON() ([]byte, error) {
	if l.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.items)
}

// UnmarshalJSON rehydrates through New so stored data is validated.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	next, err := New(items...)
	if err != nil {
		return err
	}
	*l = next
	return nil
}
