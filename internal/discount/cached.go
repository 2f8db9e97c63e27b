package discount

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/cache"
)

// CachedStore memoizes rules in redis. Only found rules are cached; expiry
// is still evaluated by the Resolver on every call.
type CachedStore struct {
	Next   Store
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Find implements Store.
func (s *CachedStore) Find(ctx context.Context, code string) (Rule, error) {
	key := cache.KeyDiscountRule(code)
	var r Rule
	if hit, err := s.Cache.Get(ctx, key, &r); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("discount_cache_read_failed")
	} else if hit {
		return r, nil
	}
	r, err := s.Next.Find(ctx, code)
	if err != nil {
		return Rule{}, err
	}
	if err := s.Cache.Set(ctx, key, r); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("discount_cache_write_failed")
	}
	return r, nil
}

// Invalidate drops a cached rule, e.g. after an operator deactivates it.
func (s *CachedStore) Invalidate(ctx context.Context, code string) error {
	return s.Cache.Delete(ctx, cache.KeyDiscountRule(code))
}
