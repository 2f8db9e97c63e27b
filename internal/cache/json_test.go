package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewJSON(client, time.Minute)
	ctx := context.Background()
	key := KeyCatalogItem("treatment", "dental-implant")

	var got payload
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, key, payload{Name: "Dental Implant", Price: 70000}))
	hit, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "Dental Implant", got.Name)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONDisabledIsNoop(t *testing.T) {
	c := NewJSON(nil, time.Minute)
	require.False(t, c.Enabled())
	require.NoError(t, c.Set(context.Background(), "k", payload{}))
	hit, err := c.Get(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Delete(context.Background(), "k"))
}

func TestKeysNormalize(t *testing.T) {
	require.Equal(t, "smilequote:discount:SUMMER15", KeyDiscountRule("  summer15 "))
	require.Equal(t, "smilequote:catalog:addon:travel-concierge", KeyCatalogItem("addon", "travel-concierge"))
}
