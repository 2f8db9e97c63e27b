package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC) }

func TestResolveNormalizesCode(t *testing.T) {
	res := &Resolver{Store: DefaultStore(), Now: fixedNow}
	rule, err := res.Resolve(context.Background(), "  summer15 ")
	require.NoError(t, err)
	require.Equal(t, "SUMMER15", rule.Code)
	require.Equal(t, TypePercentage, rule.Type)
	require.True(t, rule.Value.Equal(decimal.NewFromInt(15)))
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	future := fixedNow().Add(48 * time.Hour)
	store, err := NewMemoryStore(append(DefaultRules(),
		Rule{Code: "SOON", Source: SourcePromoCode, Type: TypePercentage, Value: decimal.NewFromInt(5), ValidFrom: &future, Active: true},
		Rule{Code: "PAUSED", Source: SourcePromoCode, Type: TypeFixedAmount, Value: decimal.NewFromInt(5), Active: false},
	)...)
	require.NoError(t, err)
	res := &Resolver{Store: store, Now: fixedNow}

	_, err = res.Resolve(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = res.Resolve(ctx, "   ")
	require.ErrorIs(t, err, ErrNotFound)

	for _, code := range []string{"WINTER2023", "soon", "Paused"} {
		_, err = res.Resolve(ctx, code)
		require.ErrorIs(t, err, ErrExpired, code)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	res := &Resolver{Store: DefaultStore(), Now: fixedNow}
	a, err := res.Resolve(context.Background(), "IMPLANTCROWN30")
	require.NoError(t, err)
	b, err := res.Resolve(context.Background(), "implantcrown30")
	require.NoError(t, err)
	require.Equal(t, a, b)

	a.ApplicableItemIDs[0] = "mutated"
	c, _ := res.Resolve(context.Background(), "IMPLANTCROWN30")
	require.Equal(t, "dental-implant", c.ApplicableItemIDs[0], "store must hand out copies")
}

func TestResolveSource(t *testing.T) {
	res := &Resolver{Store: DefaultStore(), Now: fixedNow}
	_, err := res.ResolveSource(context.Background(), "offer-free-whitening", SourceSpecialOffer)
	require.NoError(t, err)
	_, err = res.ResolveSource(context.Background(), "OFFER-FREE-WHITENING", SourcePromoCode)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRuleValidate(t *testing.T) {
	require.ErrorIs(t, Rule{Code: "X", Type: TypePercentage, Value: decimal.NewFromInt(101)}.Validate(), ErrInvalidRule)
	require.ErrorIs(t, Rule{Code: "X", Type: TypeFixedAmount, Value: decimal.NewFromInt(-1)}.Validate(), ErrInvalidRule)
	require.ErrorIs(t, Rule{Code: "", Type: TypeFixedAmount}.Validate(), ErrInvalidRule)
	require.ErrorIs(t, Rule{Code: "X", Type: "bogo"}.Validate(), ErrInvalidRule)
	require.NoError(t, Rule{Code: "X", Type: TypePercentage, Value: decimal.NewFromInt(100)}.Validate())
}

func TestAppliesTo(t *testing.T) {
	all := Rule{}
	require.True(t, all.AppliesTo("anything"))
	scoped := Rule{ApplicableItemIDs: []string{"dental-implant"}}
	require.True(t, scoped.AppliesTo("dental-implant"))
	require.False(t, scoped.AppliesTo("teeth-whitening"))
}
