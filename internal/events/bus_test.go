package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/events"
)

type stubStore struct {
	saved []events.Event
	err   error
}

func (s *stubStore) Insert(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return at }}

	ev, err := bus.Emit(context.Background(), events.TopicQuoteSubmitted, "q-1", map[string]any{"total": "850.00"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, at, ev.OccurredAt)
	require.Len(t, store.saved, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.ID, notifier.events[0].ID)
	require.JSONEq(t, `{"total":"850.00"}`, string(store.saved[0].Payload))
}

func TestEmitValidation(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "q-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicQuoteExpired, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicQuoteExpired, "q-1", json.RawMessage(`{bad`))
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicQuoteExpired, "q-1", nil)
	require.NoError(t, err, "store is optional")
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestEmitStopsOnStoreFailureAndJoinsNotifierErrors(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicQuoteAssigned, "q-1", nil)
	require.ErrorContains(t, err, "db down")
	require.Empty(t, notifier.events)

	failing := &captureNotifier{err: errors.New("queue full")}
	second := &captureNotifier{}
	bus = events.Bus{Notifiers: []events.Notifier{failing, nil, second}}
	_, err = bus.Emit(context.Background(), events.TopicQuoteAssigned, "q-1", nil)
	require.ErrorContains(t, err, "queue full")
	require.Len(t, second.events, 1)
}

type recordingExec struct {
	sql  string
	args []any
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresStoreInsert(t *testing.T) {
	db := &recordingExec{}
	store := &events.PostgresStore{DB: db}
	ev := events.Event{ID: "e1", Topic: events.TopicQuoteCancelled, AggregateID: "q-9", Payload: json.RawMessage(`{}`)}
	require.NoError(t, store.Insert(context.Background(), ev))
	require.Contains(t, db.sql, "quote_events")
	require.Equal(t, "q-9", db.args[2])
}
