package catalog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/cache"
)

// Cached is a read-through cache in front of another Lookup. Misses from the
// backend are not cached so newly published items appear immediately.
type Cached struct {
	Next   Lookup
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Get implements Lookup.
func (c *Cached) Get(ctx context.Context, kind Kind, id string) (Entry, error) {
	key := cache.KeyCatalogItem(string(kind), id)
	var e Entry
	if hit, err := c.Cache.Get(ctx, key, &e); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	} else if hit {
		return e, nil
	}
	e, err := c.Next.Get(ctx, kind, id)
	if err != nil {
		return Entry{}, err
	}
	if err := c.Cache.Set(ctx, key, e); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return e, nil
}
