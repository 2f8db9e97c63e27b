package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/money"
)

var cat = catalog.DefaultCatalog()

func mustAdd(t *testing.T, l Ledger, kind catalog.Kind, id string, qty int) Ledger {
	t.Helper()
	next, err := Add(context.Background(), cat, l, kind, id, qty)
	require.NoError(t, err)
	return next
}

func TestAddAppendsThenIncrements(t *testing.T) {
	l := mustAdd(t, Ledger{}, catalog.KindTreatment, "dental-implant", 1)
	l = mustAdd(t, l, catalog.KindTreatment, "porcelain-crown", 1)
	l = mustAdd(t, l, catalog.KindTreatment, "dental-implant", 2)

	items := l.Items()
	require.Len(t, items, 2)
	require.Equal(t, "dental-implant", items[0].ItemID)
	require.Equal(t, 3, items[0].Quantity)
	require.Equal(t, money.FromMajor(2100), items[0].LineTotal())
	require.Equal(t, money.FromMajor(2400), Subtotal(l))
}

func TestAddUnknownItemLeavesLedgerUnchanged(t *testing.T) {
	l := mustAdd(t, Ledger{}, catalog.KindTreatment, "root-canal", 1)
	next, err := Add(context.Background(), cat, l, catalog.KindTreatment, "gold-grill", 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Equal(t, l, next)
	require.Equal(t, money.FromMajor(350), Subtotal(next))
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Add(context.Background(), cat, Ledger{}, catalog.KindTreatment, "root-canal", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddDoesNotMutateInput(t *testing.T) {
	base := mustAdd(t, Ledger{}, catalog.KindAddOn, "city-tour", 1)
	_ = mustAdd(t, base, catalog.KindAddOn, "city-tour", 4)
	item, ok := base.Find(catalog.KindAddOn, "city-tour")
	require.True(t, ok)
	require.Equal(t, 1, item.Quantity)
}

func TestAddRemoveInverse(t *testing.T) {
	base := mustAdd(t, Ledger{}, catalog.KindTreatment, "teeth-whitening", 1)
	base = mustAdd(t, base, catalog.KindPackage, "smile-makeover", 1)

	added := mustAdd(t, base, catalog.KindAddOn, "airport-transfer", 1)
	restored := Remove(added, catalog.KindAddOn, "airport-transfer")
	require.Equal(t, base.Items(), restored.Items())
	require.Equal(t, Subtotal(base), Subtotal(restored))
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	base := mustAdd(t, Ledger{}, catalog.KindTreatment, "teeth-whitening", 1)
	require.Equal(t, base, Remove(base, catalog.KindTreatment, "porcelain-veneer"))
	require.Equal(t, base, Remove(base, catalog.KindPackage, "teeth-whitening"))
}

func TestSetQuantity(t *testing.T) {
	l := mustAdd(t, Ledger{}, catalog.KindTreatment, "porcelain-veneer", 2)

	next, err := SetQuantity(l, catalog.KindTreatment, "porcelain-veneer", 6)
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(2700), Subtotal(next))

	zero, err := SetQuantity(next, catalog.KindTreatment, "porcelain-veneer", 0)
	require.NoError(t, err)
	_, found := zero.Find(catalog.KindTreatment, "porcelain-veneer")
	require.False(t, found)
	require.True(t, zero.Empty())

	_, err = SetQuantity(l, catalog.KindTreatment, "root-canal", 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestNewRejectsMalformedLines(t *testing.T) {
	_, err := New(LineItem{ItemID: "a", Kind: catalog.KindTreatment, UnitPrice: 100, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = New(
		LineItem{ItemID: "a", Kind: catalog.KindTreatment, UnitPrice: 100, Quantity: 1},
		LineItem{ItemID: "a", Kind: catalog.KindTreatment, UnitPrice: 100, Quantity: 2},
	)
	require.ErrorIs(t, err, ErrInvalidLine)

	l, err := New(LineItem{ItemID: "a", Kind: catalog.KindTreatment, UnitPrice: 100, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, money.Money(200), Subtotal(l))
}

func TestParseInstanceID(t *testing.T) {
	kind, id, err := ParseInstanceID("package:smile-makeover")
	require.NoError(t, err)
	require.Equal(t, catalog.KindPackage, kind)
	require.Equal(t, "smile-makeover", id)

	kind, id, err = ParseInstanceID("root-canal")
	require.NoError(t, err)
	require.Equal(t, catalog.KindTreatment, kind)
	require.Equal(t, "root-canal", id)

	_, _, err = ParseInstanceID("treatment:")
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestLedgerJSON(t *testing.T) {
	l := mustAdd(t, Ledger{}, catalog.KindTreatment, "dental-implant", 2)
	raw, err := l.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `[{"itemId":"dental-implant","itemKind":"treatment","name":"Dental Implant","unitPrice":700.00,"quantity":2}]`, string(raw))

	var back Ledger
	require.NoError(t, back.UnmarshalJSON(raw))
	require.Equal(t, l.Items(), back.Items())

	empty, err := Ledger{}.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "[]", string(empty))

	require.ErrorIs(t, back.UnmarshalJSON([]byte(`[{"itemId":"x","itemKind":"treatment","unitPrice":1,"quantity":0}]`)), ErrInvalidLine)
}

// canonicalLookup answers with lowercased ids, like a remote catalog that
// normalizes what it is asked for.
type canonicalLookup struct{}

func (canonicalLookup) Get(ctx context.Context, kind catalog.Kind, id string) (catalog.Entry, error) {
	return cat.Get(ctx, kind, strings.ToLower(id))
}

func TestAddMergesOnCanonicalID(t *testing.T) {
	ctx := context.Background()
	l, err := Add(ctx, canonicalLookup{}, Ledger{}, catalog.KindTreatment, "Dental-Implant", 1)
	require.NoError(t, err)
	l, err = Add(ctx, canonicalLookup{}, l, catalog.KindTreatment, "Dental-Implant", 2)
	require.NoError(t, err)

	items := l.Items()
	require.Len(t, items, 1)
	require.Equal(t, "dental-implant", items[0].ItemID)
	require.Equal(t, 3, items[0].Quantity)

	raw, err := l.MarshalJSON()
	require.NoError(t, err)
	var back Ledger
	require.NoError(t, back.UnmarshalJSON(raw))
	require.Equal(t, items, back.Items())
}
