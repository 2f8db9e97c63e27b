// Package pricing derives quote totals from a ledger and at most one discount rule.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/ledger"
	"github.com/noah-isme/smilequote/internal/money"
)

// ErrInvariant marks a computed amount that violates the pricing invariants.
// Price panics with it; such a result is a defect, never a user error.
var ErrInvariant = errors.New("pricing: invariant violated")

var hundred = decimal.NewFromInt(100)

// Summary is the derived price of a quote.
type Summary struct {
	Subtotal money.Money `json:"subtotal"`
	Discount money.Money `json:"discount"`
	Total    money.Money `json:"total"`
	// Eligible is true when a rule is present and its minimum spend is met.
	Eligible bool `json:"eligible"`
	// AmountToQualify is how much more must be spent to meet the minimum.
	AmountToQualify money.Money `json:"amountToQualify,omitempty"`
}

// Price computes subtotal, discount and total. It is pure: the same inputs
// always give the same Summary.
func Price(l ledger.Ledger, rule *discount.Rule) Summary {
	subtotal := ledger.Subtotal(l)
	s := Summary{Subtotal: subtotal, Total: subtotal}
	if rule == nil {
		return s
	}
	if rule.MinimumSpend != nil && subtotal < *rule.MinimumSpend {
		s.AmountToQualify = *rule.MinimumSpend - subtotal
		return s
	}
	s.Eligible = true
	s.Discount = Discount(Base(l, *rule), *rule)

	if s.Discount < 0 || s.Discount > subtotal {
		panic(fmt.Errorf("%w: discount %s outside [0, %s] for %s", ErrInvariant, s.Discount, subtotal, rule.Code))
	}
	s.Total = subtotal - s.Discount
	if s.Total < 0 {
		s.Total = 0
	}
	return s
}

// Base is the part of the subtotal the rule discounts: the whole subtotal for
// an unscoped rule, otherwise the sum of matching line totals.
func Base(l ledger.Ledger, rule discount.Rule) money.Money {
	if len(rule.ApplicableItemIDs) == 0 {
		return ledger.Subtotal(l)
	}
	var base money.Money
	for _, it := range l.Items() {
		if rule.AppliesTo(it.ItemID) {
			base += it.LineTotal()
		}
	}
	return base
}

// Discount applies the rule to a base amount. Percentages are computed in
// decimal and rounded half-up once, after the cap.
func Discount(base money.Money, rule discount.Rule) money.Money {
	if base <= 0 {
		return 0
	}
	var raw decimal.Decimal
	switch rule.Type {
	case discount.TypePercentage:
		raw = base.Decimal().Mul(rule.Value).Div(hundred)
	case discount.TypeFixedAmount:
		raw = decimal.Min(rule.Value, base.Decimal())
	default:
		return 0
	}
	if rule.MaxDiscountAmount != nil {
		raw = decimal.Min(raw, rule.MaxDiscountAmount.Decimal())
	}
	if raw.IsNegative() {
		return 0
	}
	return money.FromDecimal(raw)
}
