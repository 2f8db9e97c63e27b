package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/money"
)

func TestDefaultCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	ctx := context.Background()

	e, err := c.Get(ctx, KindTreatment, "dental-implant")
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(700), e.UnitPrice)
	require.Equal(t, CategoryImplants, e.Category)

	pkg, err := c.Get(ctx, KindPackage, "implant-crown-bundle")
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(900), pkg.UnitPrice, "bundle price is authoritative")

	_, err = c.Get(ctx, KindTreatment, "gold-tooth")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Get(ctx, KindAddOn, "dental-implant")
	require.ErrorIs(t, err, ErrNotFound, "kinds do not share a namespace")

	_, err = c.Get(ctx, Kind("voucher"), "x")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestPackageSavings(t *testing.T) {
	pkgs, err := DefaultCatalog().Packages(context.Background())
	require.NoError(t, err)
	var smile Package
	for _, p := range pkgs {
		if p.ID == "smile-makeover" {
			smile = p
		}
	}
	require.Equal(t, money.FromMajor(3850), smile.StandardTotal())
	require.Equal(t, money.FromMajor(650), smile.Savings())
}

func TestNewStaticRejectsBadSeed(t *testing.T) {
	_, err := NewStatic([]Treatment{{ID: "free", Name: "Free", UnitPrice: 0}}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = NewStatic(
		[]Treatment{{ID: "a", UnitPrice: 100}, {ID: "a", UnitPrice: 200}},
		nil, nil,
	)
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = NewStatic(nil, []Package{{ID: "p", PackagePrice: 100, Included: []PackageItem{{TreatmentID: "missing", Quantity: 1}}}}, nil)
	require.ErrorIs(t, err, ErrInvalidItem)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	require.Equal(t, KindTreatment, k)
	k, err = ParseKind(" Add-On ")
	require.NoError(t, err)
	require.Equal(t, KindAddOn, k)
	_, err = ParseKind("gift")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestListingsAreCopies(t *testing.T) {
	c := DefaultCatalog()
	rows, _ := c.Treatments(context.Background())
	rows[0].UnitPrice = 1
	again, _ := c.Treatments(context.Background())
	require.NotEqual(t, money.Money(1), again[0].UnitPrice)
}
