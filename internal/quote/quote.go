// Package quote binds a ledger, an optional discount and patient contact into
// a versioned quote with a status lifecycle.
package quote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/ledger"
	"github.com/noah-isme/smilequote/internal/pricing"
)

// Status is a lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusAssigned  Status = "ASSIGNED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// AnyVersion disables the optimistic version check on a mutation.
const AnyVersion int64 = 0

var (
	ErrNotFound               = errors.New("quote: not found")
	ErrLocked                 = errors.New("quote: quote is no longer editable")
	ErrInvalidTransition      = errors.New("quote: invalid status transition")
	ErrConcurrentModification = errors.New("quote: modified concurrently")
	ErrStale                  = errors.New("quote: superseded by a newer request")
)

// ValidationError lists every field that blocks submission.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "quote: missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// Contact is the patient's contact detail, optional until submission.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Quote is the aggregate. Methods return modified copies.
type Quote struct {
	ID          string         `json:"id"`
	Version     int64          `json:"version"`
	Status      Status         `json:"status"`
	Ledger      ledger.Ledger  `json:"lineItems"`
	Discount    *discount.Rule `json:"activeDiscount,omitempty"`
	DiscountSeq uint64         `json:"discountSeq,omitempty"`
	Contact     Contact        `json:"patientContact"`
	ClinicID    string         `json:"clinicId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	SubmittedAt *time.Time     `json:"submittedAt,omitempty"`
}

var validate = validator.New()

// New starts a DRAFT quote.
func New(id string, now time.Time) Quote {
	return Quote{ID: id, Version: 1, Status: StatusDraft, CreatedAt: now, UpdatedAt: now}
}

// Totals is always derived from the ledger and discount.
func (q Quote) Totals() pricing.Summary {
	return pricing.Price(q.Ledger, q.Discount)
}

// Editable reports whether ledger, discount and contact may change.
func (q Quote) Editable() bool { return q.Status == StatusDraft }

// Terminal reports whether no further transitions are possible.
func (q Quote) Terminal() bool {
	switch q.Status {
	case StatusAssigned, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func (q Quote) clone() Quote {
	out := q
	if q.Discount != nil {
		r := q.Discount.Clone()
		out.Discount = &r
	}
	if q.SubmittedAt != nil {
		t := *q.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}

func (q Quote) draft(now time.Time) (Quote, error) {
	if !q.Editable() {
		return q, fmt.Errorf("%w: status %s", ErrLocked, q.Status)
	}
	next := q.clone()
	next.UpdatedAt = now
	return next, nil
}

// WithLedger replaces the ledger of a DRAFT quote.
func (q Quote) WithLedger(l ledger.Ledger, now time.Time) (Quote, error) {
	next, err := q.draft(now)
	if err != nil {
		return q, err
	}
	next.Ledger = l
	return next, nil
}

// ApplyDiscount sets the single active rule, replacing any previous one.
// seq is the client's request sequence; a non-zero seq not greater than the
// last accepted one is rejected with ErrStale.
func (q Quote) ApplyDiscount(rule discount.Rule, seq uint64, now time.Time) (Quote, error) {
	next, err := q.draft(now)
	if err != nil {
		return q, err
	}
	if seq != 0 && seq <= q.DiscountSeq {
		return q, fmt.Errorf("%w: sequence %d <= %d", ErrStale, seq, q.DiscountSeq)
	}
	r := rule.Clone()
	next.Discount = &r
	if seq != 0 {
		next.DiscountSeq = seq
	}
	return next, nil
}

// ClearDiscount removes the active rule.
func (q Quote) ClearDiscount(now time.Time) (Quote, error) {
	next, err := q.draft(now)
	if err != nil {
		return q, err
	}
	next.Discount = nil
	return next, nil
}

// SetContact replaces the patient contact.
func (q Quote) SetContact(c Contact, now time.Time) (Quote, error) {
	next, err := q.draft(now)
	if err != nil {
		return q, err
	}
	next.Contact = Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
	return next, nil
}

// Missing returns every field that blocks submission.
func (q Quote) Missing() []string {
	var fields []string
	if q.Ledger.Empty() {
		fields = append(fields, "lineItems")
	}
	if strings.TrimSpace(q.Contact.Name) == "" {
		fields = append(fields, "name")
	}
	if validate.Var(q.Contact.Email, "required,email") != nil {
		fields = append(fields, "email")
	}
	return fields
}

// Submit moves DRAFT to SUBMITTED after checking required fields.
func (q Quote) Submit(now time.Time) (Quote, error) {
	if q.Status != StatusDraft {
		return q, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, StatusSubmitted)
	}
	if missing := q.Missing(); len(missing) > 0 {
		return q, &ValidationError{Fields: missing}
	}
	next := q.clone()
	next.Status = StatusSubmitted
	next.UpdatedAt = now
	next.SubmittedAt = &now
	return next, nil
}

// Assign hands a SUBMITTED quote to a clinic.
func (q Quote) Assign(clinicID string, now time.Time) (Quote, error) {
	if q.Status != StatusSubmitted {
		return q, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, StatusAssigned)
	}
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return q, &ValidationError{Fields: []string{"clinicId"}}
	}
	next := q.clone()
	next.Status = StatusAssigned
	next.ClinicID = clinicID
	next.UpdatedAt = now
	return next, nil
}

// Cancel is allowed from any non-terminal state.
func (q Quote) Cancel(now time.Time) (Quote, error) {
	if q.Terminal() {
		return q, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, StatusCancelled)
	}
	next := q.clone()
	next.Status = StatusCancelled
	next.UpdatedAt = now
	return next, nil
}

// Expire moves a SUBMITTED quote untouched for longer than ttl to EXPIRED.
// It reports whether the status changed.
func (q Quote) Expire(now time.Time, ttl time.Duration) (Quote, bool) {
	if q.Status != StatusSubmitted || ttl <= 0 || now.Sub(q.UpdatedAt) <= ttl {
		return q, false
	}
	next := q.clone()
	next.Status = StatusExpired
	next.UpdatedAt = now
	return next, true
}
