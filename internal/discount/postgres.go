package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/smilequote/internal/money"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads rules from the discount_rules table.
type PostgresStore struct {
	DB Querier
}

const sqlFindRule = `SELECT code, source, description, discount_type, discount_value::text,
	applicable_item_ids, minimum_spend_cents, max_discount_cents, valid_from, valid_until, active
FROM discount_rules WHERE upper(code) = $1`

// Find implements Store.
func (s *PostgresStore) Find(ctx context.Context, code string) (Rule, error) {
	var (
		r          Rule
		source     string
		kind       string
		value      string
		minSpend   *int64
		maxCap     *int64
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := s.DB.QueryRow(ctx, sqlFindRule, Normalize(code)).Scan(
		&r.Code, &source, &r.Description, &kind, &value,
		&r.ApplicableItemIDs, &minSpend, &maxCap, &validFrom, &validUntil, &r.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, fmt.Errorf("%w: %s", ErrNotFound, Normalize(code))
		}
		return Rule{}, fmt.Errorf("discount: find %s: %w", Normalize(code), err)
	}
	r.Code = Normalize(r.Code)
	r.Source = Source(source)
	r.Type = Type(kind)
	if r.Value, err = decimal.NewFromString(value); err != nil {
		return Rule{}, fmt.Errorf("%w: %s value %q", ErrInvalidRule, r.Code, value)
	}
	if minSpend != nil {
		m := money.Money(*minSpend)
		r.MinimumSpend = &m
	}
	if maxCap != nil {
		m := money.Money(*maxCap)
		r.MaxDiscountAmount = &m
	}
	r.ValidFrom, r.ValidUntil = validFrom, validUntil
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}
