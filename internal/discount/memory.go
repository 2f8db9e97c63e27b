package discount

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/smilequote/internal/money"
)

// MemoryStore keeps rules in a map keyed by normalized code.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewMemoryStore validates and indexes the provided rules.
func NewMemoryStore(rules ...Rule) (*MemoryStore, error) {
	s := &MemoryStore{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if err := s.Put(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put inserts or replaces a rule.
func (s *MemoryStore) Put(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()
	r.Code = Normalize(r.Code)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.Code] = r
	return nil
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, code string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[Normalize(code)]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrNotFound, Normalize(code))
	}
	return r.Clone(), nil
}

func amount(units int64) *money.Money {
	m := money.FromMajor(units)
	return &m
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// DefaultRules returns the promo codes and special offers seeded for local
// development and tests.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:        "SUMMER15",
			Source:      SourcePromoCode,
			Description: "15% off your whole treatment plan",
			Type:        TypePercentage,
			Value:       decimal.NewFromInt(15),
			ValidFrom:   date(2024, time.January, 1),
			Active:      true,
		},
		{
			Code:        "FREECONSULT",
			Source:      SourcePromoCode,
			Description: "Consultation on us",
			Type:        TypeFixedAmount,
			Value:       decimal.NewFromInt(75),
			Active:      true,
		},
		{
			Code:              "IMPLANTCROWN30",
			Source:            SourcePromoCode,
			Description:       "30% off implants and crowns when you spend $700",
			Type:              TypePercentage,
			Value:             decimal.NewFromInt(30),
			ApplicableItemIDs: []string{"dental-implant", "porcelain-crown", "zirconia-crown", "implant-crown-bundle"},
			MinimumSpend:      amount(700),
			Active:            true,
		},
		{
			Code:              "NEWSMILE10",
			Source:            SourcePromoCode,
			Description:       "10% off, up to $200",
			Type:              TypePercentage,
			Value:             decimal.NewFromInt(10),
			MaxDiscountAmount: amount(200),
			Active:            true,
		},
		{
			Code:        "WINTER2023",
			Source:      SourcePromoCode,
			Description: "Winter 2023 campaign",
			Type:        TypePercentage,
			Value:       decimal.NewFromInt(20),
			ValidFrom:   date(2023, time.January, 1),
			ValidUntil:  date(2023, time.March, 1),
			Active:      true,
		},
		{
			Code:              "OFFER-FREE-WHITENING",
			Source:            SourceSpecialOffer,
			Description:       "Free whitening with any veneer treatment",
			Type:              TypeFixedAmount,
			Value:             decimal.NewFromInt(250),
			ApplicableItemIDs: []string{"teeth-whitening"},
			MinimumSpend:      amount(1500),
			Active:            true,
		},
		{
			Code:              "OFFER-VENEER-BUNDLE",
			Source:            SourceSpecialOffer,
			Description:       "12.5% off veneer packages",
			Type:              TypePercentage,
			Value:             decimal.RequireFromString("12.5"),
			ApplicableItemIDs: []string{"porcelain-veneer", "composite-veneer", "smile-makeover", "hollywood-smile"},
			MaxDiscountAmount: amount(500),
			Active:            true,
		},
	}
}

// DefaultStore is a MemoryStore seeded with DefaultRules.
func DefaultStore() *MemoryStore {
	s, err := NewMemoryStore(DefaultRules()...)
	if err != nil {
		panic(err)
	}
	return s
}
