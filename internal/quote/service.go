package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/events"
	"github.com/noah-isme/smilequote/internal/ledger"
	"github.com/noah-isme/smilequote/internal/lock"
	"github.com/noah-isme/smilequote/internal/obs"
)

// Locker serialises status transitions across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service orchestrates quote mutations. Every mutation loads the quote,
// applies lazy expiry, checks the caller's expected version and writes back
// with compare-and-swap. Conflicts are returned, never retried.
type Service struct {
	Store        Store
	Catalog      catalog.Lookup
	Resolver     *discount.Resolver
	Guard        *SlotGuard
	Locker       Locker
	Events       Emitter
	SubmittedTTL time.Duration
	LockTTL      time.Duration
	Now          func() time.Time
	NewID        func() string
	Logger       zerolog.Logger

	guardOnce sync.Once
}

// DefaultSubmittedTTL is how long a SUBMITTED quote stays open.
const DefaultSubmittedTTL = 30 * 24 * time.Hour

// Create starts a new DRAFT quote.
func (s *Service) Create(ctx context.Context) (Quote, error) {
	q := New(s.newID(), s.now())
	if err := s.Store.Create(ctx, q); err != nil {
		return Quote{}, err
	}
	obs.RecordQuoteOperation("create", "ok")
	return q, nil
}

// Get loads a quote, persisting an EXPIRED transition if the TTL has lapsed.
func (s *Service) Get(ctx context.Context, id string) (Quote, error) {
	q, err := s.Store.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	expired, changed := q.Expire(s.now(), s.ttl())
	if !changed {
		return q, nil
	}
	saved, err := s.Store.Update(ctx, expired, q.Version)
	if errors.Is(err, ErrConcurrentModification) {
		// another reader won the race; its write is authoritative
		return s.Store.Get(ctx, id)
	}
	if err != nil {
		return Quote{}, err
	}
	s.transitioned(ctx, q, saved, events.TopicQuoteExpired)
	return saved, nil
}

// AddItem adds qty units of a catalog item.
func (s *Service) AddItem(ctx context.Context, id string, expected int64, kind catalog.Kind, itemID string, qty int) (Quote, error) {
	return s.mutate(ctx, "add_item", id, expected, func(q Quote) (Quote, error) {
		if !q.Editable() {
			return q, fmt.Errorf("%w: status %s", ErrLocked, q.Status)
		}
		l, err := ledger.Add(ctx, s.Catalog, q.Ledger, kind, itemID, qty)
		if err != nil {
			return q, err
		}
		return q.WithLedger(l, s.now())
	})
}

// CreateWithItem starts a DRAFT holding one line. Nothing is stored when the
// catalog lookup fails.
func (s *Service) CreateWithItem(ctx context.Context, kind catalog.Kind, itemID string, qty int) (Quote, error) {
	now := s.now()
	l, err := ledger.Add(ctx, s.Catalog, ledger.Ledger{}, kind, itemID, qty)
	if err != nil {
		obs.RecordQuoteOperation("add_item", operationResult(err))
		return Quote{}, err
	}
	q, err := New(s.newID(), now).WithLedger(l, now)
	if err != nil {
		return Quote{}, err
	}
	if err := s.Store.Create(ctx, q); err != nil {
		obs.RecordQuoteOperation("add_item", operationResult(err))
		return Quote{}, err
	}
	obs.RecordQuoteOperation("create", "ok")
	obs.RecordQuoteOperation("add_item", "ok")
	return q, nil
}

// RemoveItem deletes a line. Removing an absent line still bumps the version
// so the caller's view is confirmed.
func (s *Service) RemoveItem(ctx context.Context, id string, expected int64, kind catalog.Kind, itemID string) (Quote, error) {
	return s.mutate(ctx, "remove_item", id, expected, func(q Quote) (Quote, error) {
		return q.WithLedger(ledger.Remove(q.Ledger, kind, itemID), s.now())
	})
}

// SetQuantity replaces a line's quantity; below one removes it.
func (s *Service) SetQuantity(ctx context.Context, id string, expected int64, kind catalog.Kind, itemID string, qty int) (Quote, error) {
	return s.mutate(ctx, "set_quantity", id, expected, func(q Quote) (Quote, error) {
		if !q.Editable() {
			return q, fmt.Errorf("%w: status %s", ErrLocked, q.Status)
		}
		l, err := ledger.SetQuantity(q.Ledger, kind, itemID, qty)
		if err != nil {
			return q, err
		}
		return q.WithLedger(l, s.now())
	})
}

// ApplyPromo resolves a promo code and makes it the active discount.
func (s *Service) ApplyPromo(ctx context.Context, id string, expected int64, code string, seq uint64) (Quote, error) {
	return s.applyDiscount(ctx, id, expected, code, discount.SourcePromoCode, seq)
}

// ApplyOffer resolves a special offer and makes it the active discount.
func (s *Service) ApplyOffer(ctx context.Context, id string, expected int64, offerID string, seq uint64) (Quote, error) {
	return s.applyDiscount(ctx, id, expected, offerID, discount.SourceSpecialOffer, seq)
}

// applyDiscount returns the unchanged quote alongside a resolver error so
// callers can still render the current totals.
func (s *Service) applyDiscount(ctx context.Context, id string, expected int64, code string, src discount.Source, seq uint64) (Quote, error) {
	slot := id + ":discount"
	guard := s.guard()
	ticket := guard.Begin(slot)
	defer guard.Done(slot, ticket)

	q, err := s.load(ctx, id, expected)
	if err != nil {
		obs.RecordPromoApplication(string(src), promoResult(err))
		return Quote{}, err
	}
	if !q.Editable() {
		return q, fmt.Errorf("%w: status %s", ErrLocked, q.Status)
	}
	rule, resolveErr := s.Resolver.ResolveSource(ctx, code, src)
	if !guard.IsCurrent(slot, ticket) {
		obs.RecordPromoApplication(string(src), promoResult(ErrStale))
		return q, fmt.Errorf("%w: discount for %s", ErrStale, id)
	}
	if resolveErr != nil {
		obs.RecordPromoApplication(string(src), promoResult(resolveErr))
		return q, resolveErr
	}
	next, err := q.ApplyDiscount(rule, seq, s.now())
	if err != nil {
		return q, err
	}
	saved, err := s.Store.Update(ctx, next, q.Version)
	obs.RecordPromoApplication(string(src), promoResult(err))
	if err != nil {
		return Quote{}, err
	}
	s.Logger.Debug().Str("quote_id", id).Str("code", rule.Code).Str("source", string(src)).Msg("discount_applied")
	return saved, nil
}

// RemovePromo clears the active discount.
func (s *Service) RemovePromo(ctx context.Context, id string, expected int64) (Quote, error) {
	return s.mutate(ctx, "remove_discount", id, expected, func(q Quote) (Quote, error) {
		return q.ClearDiscount(s.now())
	})
}

// Submit records contact details and moves the quote to SUBMITTED. The
// active discount is re-resolved first; if it lapsed the submit fails and the
// quote stays DRAFT.
func (s *Service) Submit(ctx context.Context, id string, expected int64, contact Contact) (Quote, error) {
	return s.transition(ctx, "submit", id, expected, events.TopicQuoteSubmitted, func(q Quote) (Quote, error) {
		next, err := q.SetContact(contact, s.now())
		if err != nil {
			return q, err
		}
		if next.Discount != nil && s.Resolver != nil {
			fresh, err := s.Resolver.ResolveSource(ctx, next.Discount.Code, next.Discount.Source)
			if err != nil {
				return q, err
			}
			next.Discount = &fresh
		}
		return next.Submit(s.now())
	})
}

// Cancel moves a non-terminal quote to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string, expected int64) (Quote, error) {
	return s.transition(ctx, "cancel", id, expected, events.TopicQuoteCancelled, func(q Quote) (Quote, error) {
		return q.Cancel(s.now())
	})
}

// Assign hands a SUBMITTED quote to a clinic.
func (s *Service) Assign(ctx context.Context, id string, expected int64, clinicID string) (Quote, error) {
	return s.transition(ctx, "assign", id, expected, events.TopicQuoteAssigned, func(q Quote) (Quote, error) {
		return q.Assign(clinicID, s.now())
	})
}

func (s *Service) load(ctx context.Context, id string, expected int64) (Quote, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if expected != AnyVersion && q.Version != expected {
		return q, fmt.Errorf("%w: current version %d, expected %d", ErrConcurrentModification, q.Version, expected)
	}
	return q, nil
}

func (s *Service) mutate(ctx context.Context, op, id string, expected int64, fn func(Quote) (Quote, error)) (Quote, error) {
	q, err := s.load(ctx, id, expected)
	if err != nil {
		obs.RecordQuoteOperation(op, operationResult(err))
		return q, err
	}
	next, err := fn(q)
	if err != nil {
		obs.RecordQuoteOperation(op, operationResult(err))
		return q, err
	}
	saved, err := s.Store.Update(ctx, next, q.Version)
	obs.RecordQuoteOperation(op, operationResult(err))
	if err != nil {
		return Quote{}, err
	}
	return saved, nil
}

func (s *Service) transition(ctx context.Context, op, id string, expected int64, topic string, fn func(Quote) (Quote, error)) (Quote, error) {
	var (
		before Quote
		saved  Quote
	)
	run := func(ctx context.Context) error {
		var err error
		before, err = s.load(ctx, id, expected)
		if err != nil {
			return err
		}
		saved, err = s.mutate(ctx, op, id, before.Version, fn)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.Key(id), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if before.ID != "" {
			return before, err
		}
		return Quote{}, err
	}
	s.transitioned(ctx, before, saved, topic)
	return saved, nil
}

func (s *Service) transitioned(ctx context.Context, before, after Quote, topic string) {
	obs.RecordQuoteTransition(string(before.Status), string(after.Status))
	s.Logger.Info().
		Str("quote_id", after.ID).
		Str("from_status", string(before.Status)).
		Str("to_status", string(after.Status)).
		Int64("version", after.Version).
		Msg("quote_transition")
	if s.Events == nil {
		return
	}
	totals := after.Totals()
	payload := map[string]any{
		"quoteId":  after.ID,
		"status":   after.Status,
		"version":  after.Version,
		"clinicId": after.ClinicID,
		"email":    after.Contact.Email,
		"name":     after.Contact.Name,
		"subtotal": totals.Subtotal,
		"discount": totals.Discount,
		"total":    totals.Total,
	}
	if _, err := s.Events.Emit(ctx, topic, after.ID, payload); err != nil {
		s.Logger.Error().Err(err).Str("quote_id", after.ID).Str("topic", topic).Msg("quote_event_emit_failed")
	}
}

func (s *Service) guard() *SlotGuard {
	s.guardOnce.Do(func() {
		if s.Guard == nil {
			s.Guard = NewSlotGuard()
		}
	})
	return s.Guard
}

func (s *Service) ttl() time.Duration {
	if s.SubmittedTTL > 0 {
		return s.SubmittedTTL
	}
	return DefaultSubmittedTTL
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 10 * time.Second
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func promoResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, discount.ErrNotFound):
		return "not_found"
	case errors.Is(err, discount.ErrExpired):
		return "expired"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}

func operationResult(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, ErrLocked), errors.Is(err, ErrInvalidTransition):
		return "rejected"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, ledger.ErrItemNotFound):
		return "not_found"
	default:
		return "error"
	}
}
