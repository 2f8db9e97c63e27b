package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/money"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = r.values[i].(string)
		case *[]string:
			*ptr, _ = r.values[i].([]string)
		case **int64:
			*ptr, _ = r.values[i].(*int64)
		case **time.Time:
			*ptr, _ = r.values[i].(*time.Time)
		case *bool:
			*ptr = r.values[i].(bool)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeQuerier struct {
	rows    map[string]fakeRow
	lastSQL string
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	if row, ok := q.rows[args[0].(string)]; ok {
		return row
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func cents(v int64) *int64 { return &v }

func TestPostgresStoreFind(t *testing.T) {
	until := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)
	q := &fakeQuerier{rows: map[string]fakeRow{
		"IMPLANTCROWN30": {values: []any{
			"implantcrown30", "promo_code", "30% off implants and crowns", "percentage", "30",
			[]string{"dental-implant", "porcelain-crown"}, cents(100000), cents(50000), (*time.Time)(nil), &until, true,
		}},
		"FREECONSULT": {values: []any{
			"FREECONSULT", "promo_code", "Free consultation", "fixed_amount", "75.00",
			[]string(nil), (*int64)(nil), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), true,
		}},
		"BROKEN": {values: []any{
			"BROKEN", "promo_code", "", "percentage", "150",
			[]string(nil), (*int64)(nil), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), true,
		}},
		"GARBLED": {values: []any{
			"GARBLED", "promo_code", "", "fixed_amount", "ten",
			[]string(nil), (*int64)(nil), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), true,
		}},
	}}
	store := &PostgresStore{DB: q}
	ctx := context.Background()

	r, err := store.Find(ctx, " implantcrown30 ")
	require.NoError(t, err)
	require.Equal(t, sqlFindRule, q.lastSQL)
	require.Equal(t, "IMPLANTCROWN30", r.Code)
	require.Equal(t, SourcePromoCode, r.Source)
	require.Equal(t, TypePercentage, r.Type)
	require.True(t, decimal.NewFromInt(30).Equal(r.Value))
	require.Equal(t, []string{"dental-implant", "porcelain-crown"}, r.ApplicableItemIDs)
	require.NotNil(t, r.MinimumSpend)
	require.Equal(t, money.Money(100000), *r.MinimumSpend)
	require.NotNil(t, r.MaxDiscountAmount)
	require.Equal(t, money.Money(50000), *r.MaxDiscountAmount)
	require.Nil(t, r.ValidFrom)
	require.Equal(t, &until, r.ValidUntil)

	r, err = store.Find(ctx, "freeconsult")
	require.NoError(t, err)
	require.Nil(t, r.MinimumSpend)
	require.Nil(t, r.MaxDiscountAmount)
	require.Empty(t, r.ApplicableItemIDs)

	_, err = store.Find(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Find(ctx, "BROKEN")
	require.ErrorIs(t, err, ErrInvalidRule)

	_, err = store.Find(ctx, "GARBLED")
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestPostgresStoreWrapsDriverErrors(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{"SUMMER15": {err: errors.New("conn reset")}}}
	_, err := (&PostgresStore{DB: q}).Find(context.Background(), "SUMMER15")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "conn reset")
}
