package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
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
		case *int64:
			*ptr = r.values[i].(int64)
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

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresStoreGet(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		"dental-implant": {values: []any{"dental-implant", "Dental Implant", "post", int64(70000), "implants"}},
		"free-thing":     {values: []any{"free-thing", "Free", "", int64(0)}},
	}}
	store := &PostgresStore{DB: q}
	ctx := context.Background()

	e, err := store.Get(ctx, KindTreatment, "dental-implant")
	require.NoError(t, err)
	require.Equal(t, money.Money(70000), e.UnitPrice)
	require.Equal(t, CategoryImplants, e.Category)
	require.Equal(t, sqlGetTreatment, q.lastSQL)

	_, err = store.Get(ctx, KindTreatment, "unknown")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, KindAddOn, "free-thing")
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = store.Get(ctx, Kind("nope"), "x")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestPostgresStoreWrapsDriverErrors(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{"boom": {err: errors.New("conn reset")}}}
	_, err := (&PostgresStore{DB: q}).Get(context.Background(), KindPackage, "boom")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "conn reset")
}
