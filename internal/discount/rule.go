// Package discount resolves promo codes and special offers into discount rules.
package discount

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/smilequote/internal/money"
)

var (
	// ErrNotFound is returned when no rule exists for a code or offer id.
	ErrNotFound = errors.New("discount: code not found")
	// ErrExpired is returned when a rule exists but is outside its validity
	// window or has been deactivated.
	ErrExpired = errors.New("discount: code expired")
	// ErrInvalidRule is returned when a rule fails shape validation.
	ErrInvalidRule = errors.New("discount: invalid rule")
)

// Type is how the discount value is interpreted.
type Type string

const (
	TypePercentage  Type = "percentage"
	TypeFixedAmount Type = "fixed_amount"
)

// Source distinguishes user-typed promo codes from offer-addressed rules.
type Source string

const (
	SourcePromoCode    Source = "promo_code"
	SourceSpecialOffer Source = "special_offer"
)

var hundred = decimal.NewFromInt(100)

// Rule is the canonical discount schema. Backends adapt into it once.
type Rule struct {
	Code              string          `json:"code"`
	Source            Source          `json:"source"`
	Description       string          `json:"description,omitempty"`
	Type              Type            `json:"discountType"`
	Value             decimal.Decimal `json:"discountValue"`
	ApplicableItemIDs []string        `json:"applicableItemIds,omitempty"`
	MinimumSpend      *money.Money    `json:"minimumSpend,omitempty"`
	MaxDiscountAmount *money.Money    `json:"maxDiscountAmount,omitempty"`
	ValidFrom         *time.Time      `json:"validFrom,omitempty"`
	ValidUntil        *time.Time      `json:"validUntil,omitempty"`
	Active            bool            `json:"active"`
}

// Normalize trims and uppercases a code for comparison.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the rule's shape: percentage in [0,100], fixed amount non-negative.
func (r Rule) Validate() error {
	if Normalize(r.Code) == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidRule)
	}
	switch r.Type {
	case TypePercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s percentage %s out of range", ErrInvalidRule, r.Code, r.Value)
		}
	case TypeFixedAmount:
		if r.Value.IsNegative() {
			return fmt.Errorf("%w: %s negative amount", ErrInvalidRule, r.Code)
		}
	default:
		return fmt.Errorf("%w: %s unknown type %q", ErrInvalidRule, r.Code, r.Type)
	}
	if r.MinimumSpend != nil && *r.MinimumSpend < 0 {
		return fmt.Errorf("%w: %s negative minimum spend", ErrInvalidRule, r.Code)
	}
	if r.MaxDiscountAmount != nil && *r.MaxDiscountAmount < 0 {
		return fmt.Errorf("%w: %s negative cap", ErrInvalidRule, r.Code)
	}
	return nil
}

// CheckWindow reports ErrExpired when the rule is not usable at now.
func (r Rule) CheckWindow(now time.Time) error {
	if !r.Active {
		return fmt.Errorf("%w: %s is no longer active", ErrExpired, r.Code)
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return fmt.Errorf("%w: %s is not valid until %s", ErrExpired, r.Code, r.ValidFrom.Format(time.DateOnly))
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return fmt.Errorf("%w: %s expired on %s", ErrExpired, r.Code, r.ValidUntil.Format(time.DateOnly))
	}
	return nil
}

// AppliesTo reports whether the rule discounts the given catalog item.
// An empty allow-list applies to everything.
func (r Rule) AppliesTo(itemID string) bool {
	return len(r.ApplicableItemIDs) == 0 || slices.Contains(r.ApplicableItemIDs, itemID)
}

// FixedAmount returns the fixed discount value in minor units.
func (r Rule) FixedAmount() money.Money {
	return money.FromDecimal(r.Value)
}

// Clone returns a deep copy so callers cannot alias stored slices or pointers.
func (r Rule) Clone() Rule {
	out := r
	out.ApplicableItemIDs = slices.Clone(r.ApplicableItemIDs)
	if r.MinimumSpend != nil {
		v := *r.MinimumSpend
		out.MinimumSpend = &v
	}
	if r.MaxDiscountAmount != nil {
		v := *r.MaxDiscountAmount
		out.MaxDiscountAmount = &v
	}
	if r.ValidFrom != nil {
		v := *r.ValidFrom
		out.ValidFrom = &v
	}
	if r.ValidUntil != nil {
		v := *r.ValidUntil
		out.ValidUntil = &v
	}
	return out
}

// Summary is the client-facing projection returned as promoDetails.
type Summary struct {
	Code          string          `json:"code"`
	Source        Source          `json:"source"`
	DiscountType  Type            `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Description   string          `json:"description,omitempty"`
	MinimumSpend  *money.Money    `json:"minimumSpend,omitempty"`
	MaxDiscount   *money.Money    `json:"maxDiscountAmount,omitempty"`
	ValidUntil    *time.Time      `json:"validUntil,omitempty"`
}

// Summarize builds the promoDetails view of a rule.
func (r Rule) Summarize() Summary {
	return Summary{
		Code:          r.Code,
		Source:        r.Source,
		DiscountType:  r.Type,
		DiscountValue: r.Value,
		Description:   r.Description,
		MinimumSpend:  r.MinimumSpend,
		MaxDiscount:   r.MaxDiscountAmount,
		ValidUntil:    r.ValidUntil,
	}
}
