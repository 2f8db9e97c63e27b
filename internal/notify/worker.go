package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smilequote/internal/events"
	"github.com/noah-isme/smilequote/internal/obs"
)

// Worker processes notification tasks. Expiry only emails the patient;
// the other transitions also reach the clinic webhook.
type Worker struct {
	Email   events.Notifier
	Webhook events.Notifier
	Logger  zerolog.Logger
}

// Register attaches the worker to an asynq mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeQuoteNotification, w.ProcessTask)
}

// ProcessTask implements asynq.HandlerFunc. Malformed payloads are dropped
// with asynq.SkipRetry.
func (w Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		obs.RecordNotificationTask("unknown", "invalid")
		return fmt.Errorf("notify: decode task: %v: %w", err, asynq.SkipRetry)
	}
	log := w.Logger.With().Str("event_id", ev.ID).Str("topic", ev.Topic).Str("quote_id", ev.AggregateID).Logger()

	var joined error
	for _, n := range w.targets(ev.Topic) {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	if joined != nil {
		obs.RecordNotificationTask(ev.Topic, "error")
		log.Error().Err(joined).Msg("quote_notification_failed")
		return joined
	}
	obs.RecordNotificationTask(ev.Topic, "ok")
	log.Info().Msg("quote_notification_sent")
	return nil
}

func (w Worker) targets(topic string) []events.Notifier {
	switch topic {
	case events.TopicQuoteExpired:
		return []events.Notifier{w.Email}
	case events.TopicQuoteSubmitted, events.TopicQuoteAssigned, events.TopicQuoteCancelled:
		return []events.Notifier{w.Email, w.Webhook}
	default:
		return nil
	}
}
