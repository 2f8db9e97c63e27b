package discount

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/money"
	"github.com/noah-isme/smilequote/internal/resilience"
)

// RemoteStore adapts the external promo service. Its snake_case payload is
// converted into Rule here and nowhere else.
type RemoteStore struct {
	HTTP    resilience.HTTPClient
	BaseURL string
}

type remoteEnvelope struct {
	Success   *bool        `json:"success"`
	Message   string       `json:"message"`
	Promotion *remotePromo `json:"promotion"`
	remotePromo
}

type remotePromo struct {
	PromoCode            string           `json:"promo_code"`
	Code                 string           `json:"code"`
	OfferID              string           `json:"offer_id"`
	PromotionLevel       string           `json:"promotion_level"`
	Description          string           `json:"description"`
	DiscountType         string           `json:"discount_type"`
	DiscountValue        decimal.Decimal  `json:"discount_value"`
	ApplicableTreatments []string         `json:"applicable_treatments"`
	MinSpend             *decimal.Decimal `json:"min_spend"`
	MaxDiscount          *decimal.Decimal `json:"max_discount"`
	StartDate            string           `json:"start_date"`
	EndDate              string           `json:"end_date"`
	IsActive             *bool            `json:"is_active"`
}

// Find implements Store via GET {base}/api/promo-codes/{code}.
func (s *RemoteStore) Find(ctx context.Context, code string) (Rule, error) {
	normalized := Normalize(code)
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/api/promo-codes/" + url.PathEscape(normalized)
	var env remoteEnvelope
	if err := s.HTTP.GetJSON(ctx, endpoint, &env); err != nil {
		if resilience.IsStatus(err, http.StatusNotFound) {
			return Rule{}, fmt.Errorf("%w: %s", ErrNotFound, normalized)
		}
		return Rule{}, common.ErrUpstreamUnavailable(fmt.Errorf("discount: promo service %s: %w", normalized, err))
	}
	if env.Success != nil && !*env.Success {
		return Rule{}, fmt.Errorf("%w: %s", ErrNotFound, normalized)
	}
	promo := env.remotePromo
	if env.Promotion != nil {
		promo = *env.Promotion
	}
	rule, err := promo.toRule()
	if err != nil {
		return Rule{}, err
	}
	if rule.Code == "" {
		rule.Code = normalized
	}
	return rule, rule.Validate()
}

func (p remotePromo) toRule() (Rule, error) {
	r := Rule{
		Code:              Normalize(firstNonEmpty(p.PromoCode, p.Code, p.OfferID)),
		Source:            SourcePromoCode,
		Description:       p.Description,
		Value:             p.DiscountValue,
		ApplicableItemIDs: p.ApplicableTreatments,
		Active:            p.IsActive == nil || *p.IsActive,
	}
	if p.OfferID != "" || strings.EqualFold(p.PromotionLevel, "special_offer") {
		r.Source = SourceSpecialOffer
	}
	switch strings.ToLower(strings.TrimSpace(p.DiscountType)) {
	case "percentage", "percent":
		r.Type = TypePercentage
	case "fixed_amount", "fixed":
		r.Type = TypeFixedAmount
	default:
		return Rule{}, fmt.Errorf("%w: %s unknown discount_type %q", ErrInvalidRule, r.Code, p.DiscountType)
	}
	if p.MinSpend != nil {
		m := money.FromDecimal(*p.MinSpend)
		r.MinimumSpend = &m
	}
	if p.MaxDiscount != nil {
		m := money.FromDecimal(*p.MaxDiscount)
		r.MaxDiscountAmount = &m
	}
	var err error
	if r.ValidFrom, err = parseRemoteTime(p.StartDate, false); err != nil {
		return Rule{}, err
	}
	if r.ValidUntil, err = parseRemoteTime(p.EndDate, true); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// parseRemoteTime accepts RFC 3339 or a bare date. A bare end date covers
// the whole day.
func parseRemoteTime(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRule, value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
