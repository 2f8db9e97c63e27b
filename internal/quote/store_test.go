package quote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	q := New("q-1", t0)
	require.NoError(t, s.Create(ctx, q))
	require.Error(t, s.Create(ctx, q), "duplicate id")

	next, err := q.SetContact(Contact{Name: "Ana"}, t0)
	require.NoError(t, err)
	saved, err := s.Update(ctx, next, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, saved.Version)

	_, err = s.Update(ctx, next, 1)
	require.ErrorIs(t, err, ErrConcurrentModification)

	loaded, err := s.Get(ctx, "q-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.Version)
	require.Equal(t, "Ana", loaded.Contact.Name)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update(ctx, New("missing", t0), 1)
	require.ErrorIs(t, err, ErrNotFound)
}
