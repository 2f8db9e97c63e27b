package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used by PostgresStore.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore appends events to the quote_events table.
type PostgresStore struct {
	DB Execer
}

const sqlInsertEvent = `INSERT INTO quote_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, ev Event) error {
	if _, err := s.DB.Exec(ctx, sqlInsertEvent, ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt); err != nil {
		return fmt.Errorf("insert quote event: %w", err)
	}
	return nil
}
