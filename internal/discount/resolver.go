package discount

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store looks up rules by normalized code. Implementations return ErrNotFound
// for unknown codes.
type Store interface {
	Find(ctx context.Context, code string) (Rule, error)
}

// Resolver turns codes into usable rules.
type Resolver struct {
	Store Store
	Now   func() time.Time
}

// Resolve normalizes the code, looks it up and checks its validity window.
// It has no side effects and is safe to call repeatedly.
func (r *Resolver) Resolve(ctx context.Context, code string) (Rule, error) {
	if r == nil || r.Store == nil {
		return Rule{}, errors.New("discount resolver not configured")
	}
	normalized := Normalize(code)
	if normalized == "" {
		return Rule{}, fmt.Errorf("%w: empty code", ErrNotFound)
	}
	rule, err := r.Store.Find(ctx, normalized)
	if err != nil {
		return Rule{}, err
	}
	if err := rule.CheckWindow(r.now()); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// ResolveSource is Resolve restricted to a single source. A rule of the other
// source is reported as not found so offer ids cannot be typed as promo codes
// and vice versa.
func (r *Resolver) ResolveSource(ctx context.Context, code string, src Source) (Rule, error) {
	rule, err := r.Resolve(ctx, code)
	if err != nil {
		return Rule{}, err
	}
	if rule.Source != src {
		return Rule{}, fmt.Errorf("%w: %s is not a %s", ErrNotFound, rule.Code, src)
	}
	return rule, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
