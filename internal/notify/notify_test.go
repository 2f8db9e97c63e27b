package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/events"
)

func submittedEvent() events.Event {
	return events.Event{
		ID:          "ev-1",
		Topic:       events.TopicQuoteSubmitted,
		AggregateID: "q-1",
		Payload:     json.RawMessage(`{"quoteId":"q-1","status":"SUBMITTED","email":"ana@example.com","name":"Ana","total":850.00,"discount":150.00}`),
		OccurredAt:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestEnqueuerSchedulesLifecycleTopics(t *testing.T) {
	client := &fakeEnqueuer{}
	e := Enqueuer{Client: client}

	require.NoError(t, e.Notify(context.Background(), submittedEvent()))
	require.NoError(t, e.Notify(context.Background(), events.Event{ID: "x", Topic: "quote.viewed"}))

	require.Len(t, client.tasks, 1)
	require.Equal(t, TypeQuoteNotification, client.tasks[0].Type())
	var decoded events.Event
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	require.Equal(t, "q-1", decoded.AggregateID)
}

func TestEnqueuerTreatsDuplicateAsDelivered(t *testing.T) {
	e := Enqueuer{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, e.Notify(context.Background(), submittedEvent()))

	e = Enqueuer{Client: &fakeEnqueuer{err: errors.New("redis down")}}
	require.Error(t, e.Notify(context.Background(), submittedEvent()))
}

func TestEmailNotifierSendsToPatient(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: mail}
	require.NoError(t, n.Notify(context.Background(), submittedEvent()))

	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "ana@example.com", sent[0].To)
	require.Equal(t, "We received your treatment quote", sent[0].Subject)
	require.Contains(t, sent[0].Body, "Hi Ana")
	require.Contains(t, sent[0].Body, "Estimated total: 850.00 after a 150.00 discount")
}

func TestEmailNotifierSkipsDisabledTopicAndMissingRecipient(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: mail, TopicToggles: map[string]bool{events.TopicQuoteSubmitted: false}}
	require.NoError(t, n.Notify(context.Background(), submittedEvent()))

	ev := submittedEvent()
	ev.Topic = events.TopicQuoteExpired
	ev.Payload = json.RawMessage(`{"quoteId":"q-1","status":"EXPIRED"}`)
	require.NoError(t, EmailNotifier{Mail: mail}.Notify(context.Background(), ev))
	require.Empty(t, mail.Sent())
}

func TestClinicWebhookSignsAndSuppressesReplay(t *testing.T) {
	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Unix(1717236000, 0)
	hook := ClinicWebhook{
		URL:       srv.URL,
		Secret:    "shh",
		Client:    srv.Client(),
		Replay:    RedisReplayProtector{Client: rdb},
		ReplayTTL: time.Hour,
		Now:       func() time.Time { return now },
	}
	ev := submittedEvent()
	require.NoError(t, hook.Notify(context.Background(), ev))
	require.NoError(t, hook.Notify(context.Background(), ev))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	ts, err := strconv.ParseInt(received[0].Header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, ComputeSignature("shh", ts, "ev-1", bodies[0]), received[0].Header.Get("X-Signature"))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &envelope))
	require.Equal(t, "q-1", envelope["quoteId"])
	require.Equal(t, events.TopicQuoteSubmitted, envelope["topic"])
}

func TestClinicWebhookReleasesReplayOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hook := ClinicWebhook{URL: srv.URL, Client: srv.Client(), Replay: RedisReplayProtector{Client: rdb}, ReplayTTL: time.Hour}
	err := hook.Notify(context.Background(), submittedEvent())
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorIs(t, hook.Notify(context.Background(), submittedEvent()), ErrDeliveryFailed)
	require.EqualValues(t, 2, calls.Load())
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, validateURL("https://clinics.example.com/hooks"))
	require.NoError(t, validateURL("http://localhost:9000/hooks"))
	require.Error(t, validateURL("http://clinics.example.com/hooks"))
	require.Error(t, validateURL("ftp://clinics.example.com"))
}

func TestWorkerRoutesByTopic(t *testing.T) {
	var emailed, hooked []string
	w := Worker{
		Email:   events.NotifierFunc(func(_ context.Context, ev events.Event) error { emailed = append(emailed, ev.Topic); return nil }),
		Webhook: events.NotifierFunc(func(_ context.Context, ev events.Event) error { hooked = append(hooked, ev.Topic); return nil }),
		Logger:  zerolog.Nop(),
	}

	for _, topic := range []string{events.TopicQuoteSubmitted, events.TopicQuoteExpired} {
		ev := submittedEvent()
		ev.Topic = topic
		task, err := NewTask(ev)
		require.NoError(t, err)
		require.NoError(t, w.ProcessTask(context.Background(), task))
	}
	require.Equal(t, []string{events.TopicQuoteSubmitted, events.TopicQuoteExpired}, emailed)
	require.Equal(t, []string{events.TopicQuoteSubmitted}, hooked)
}

func TestWorkerSkipsRetryOnMalformedPayload(t *testing.T) {
	err := Worker{Logger: zerolog.Nop()}.ProcessTask(context.Background(), asynq.NewTask(TypeQuoteNotification, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerReturnsNotifierErrors(t *testing.T) {
	boom := errors.New("smtp down")
	w := Worker{
		Email:  events.NotifierFunc(func(context.Context, events.Event) error { return boom }),
		Logger: zerolog.Nop(),
	}
	task, err := NewTask(submittedEvent())
	require.NoError(t, err)
	require.ErrorIs(t, w.ProcessTask(context.Background(), task), boom)
}

func TestWorkerRetryDoesNotRepeatEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mail := &common.InMemoryEmail{}
	hookErr := errors.New("clinic network down")
	w := Worker{
		Email:   EmailNotifier{Mail: mail, Replay: RedisReplayProtector{Client: rdb}, ReplayTTL: time.Hour},
		Webhook: events.NotifierFunc(func(context.Context, events.Event) error { return hookErr }),
		Logger:  zerolog.Nop(),
	}
	task, err := NewTask(submittedEvent())
	require.NoError(t, err)

	for attempt := 0; attempt < 3; attempt++ {
		require.ErrorIs(t, w.ProcessTask(context.Background(), task), hookErr)
	}
	require.Len(t, mail.Sent(), 1)
	require.True(t, mr.Exists("smilequote:email:ev-1"))
}

type failingMailer struct{ calls int }

func (f *failingMailer) Send(context.Context, string, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func TestEmailNotifierReleasesClaimOnSendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mailer := &failingMailer{}
	n := EmailNotifier{Mail: mailer, Replay: RedisReplayProtector{Client: rdb}, ReplayTTL: time.Hour}
	require.Error(t, n.Notify(context.Background(), submittedEvent()))
	require.Error(t, n.Notify(context.Background(), submittedEvent()))
	require.Equal(t, 2, mailer.calls)
	require.False(t, mr.Exists("smilequote:email:ev-1"))
}
