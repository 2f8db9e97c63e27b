package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/ledger"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists quotes in the quotes table. Line items and the
// active discount are stored as JSONB.
type PostgresStore struct {
	DB DB
}

const (
	sqlInsertQuote = `INSERT INTO quotes
	(id, version, status, line_items, discount, discount_seq, contact_name, contact_email, contact_phone, clinic_id, created_at, updated_at, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	sqlSelectQuote = `SELECT id, version, status, line_items, discount, discount_seq, contact_name, contact_email, contact_phone,
	clinic_id, created_at, updated_at, submitted_at FROM quotes WHERE id = $1`
	sqlUpdateQuote = `UPDATE quotes SET version = $3, status = $4, line_items = $5, discount = $6, discount_seq = $7,
	contact_name = $8, contact_email = $9, contact_phone = $10, clinic_id = $11, updated_at = $12, submitted_at = $13
	WHERE id = $1 AND version = $2`
)

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, q Quote) error {
	items, disc, err := encodeJSONColumns(q)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, sqlInsertQuote,
		q.ID, q.Version, string(q.Status), items, disc, int64(q.DiscountSeq),
		q.Contact.Name, q.Contact.Email, q.Contact.Phone, q.ClinicID,
		q.CreatedAt, q.UpdatedAt, q.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("quote: insert %s: %w", q.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (Quote, error) {
	var (
		q         Quote
		status    string
		items     []byte
		disc      []byte
		seq       int64
		submitted *time.Time
	)
	err := s.DB.QueryRow(ctx, sqlSelectQuote, id).Scan(
		&q.ID, &q.Version, &status, &items, &disc, &seq,
		&q.Contact.Name, &q.Contact.Email, &q.Contact.Phone, &q.ClinicID,
		&q.CreatedAt, &q.UpdatedAt, &submitted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Quote{}, fmt.Errorf("quote: load %s: %w", id, err)
	}
	q.Status = Status(status)
	q.DiscountSeq = uint64(seq)
	q.SubmittedAt = submitted
	var l ledger.Ledger
	if err := json.Unmarshal(items, &l); err != nil {
		return Quote{}, fmt.Errorf("quote: decode line items %s: %w", id, err)
	}
	q.Ledger = l
	if len(disc) > 0 && string(disc) != "null" {
		var r discount.Rule
		if err := json.Unmarshal(disc, &r); err != nil {
			return Quote{}, fmt.Errorf("quote: decode discount %s: %w", id, err)
		}
		q.Discount = &r
	}
	return q, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, q Quote, prev int64) (Quote, error) {
	items, disc, err := encodeJSONColumns(q)
	if err != nil {
		return Quote{}, err
	}
	tag, err := s.DB.Exec(ctx, sqlUpdateQuote,
		q.ID, prev, prev+1, string(q.Status), items, disc, int64(q.DiscountSeq),
		q.Contact.Name, q.Contact.Email, q.Contact.Phone, q.ClinicID,
		q.UpdatedAt, q.SubmittedAt,
	)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: update %s: %w", q.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return Quote{}, fmt.Errorf("%w: %s at version %d", ErrConcurrentModification, q.ID, prev)
	}
	next := q.clone()
	next.Version = prev + 1
	return next, nil
}

func encodeJSONColumns(q Quote) ([]byte, []byte, error) {
	items, err := json.Marshal(q.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("quote: encode line items: %w", err)
	}
	if q.Discount == nil {
		return items, nil, nil
	}
	disc, err := json.Marshal(q.Discount)
	if err != nil {
		return nil, nil, fmt.Errorf("quote: encode discount: %w", err)
	}
	return items, disc, nil
}
