// Package notify turns quote lifecycle events into background notifications:
// patient emails and signed clinic webhooks, delivered by the asynq worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/smilequote/internal/events"
)

// TypeQuoteNotification is the asynq task type carrying one lifecycle event.
const TypeQuoteNotification = "notify:quote"

// QueueNotifications is the asynq queue the API enqueues into and the worker drains.
const QueueNotifications = "notifications"

// TaskEnqueuer is the subset of *asynq.Client used by Enqueuer.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer implements events.Notifier by scheduling a task per event. The
// event ID is the task ID so a re-emitted event is not delivered twice.
type Enqueuer struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
	Topics    []string
}

// NewTask encodes ev as a notification task.
func NewTask(ev events.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("notify: encode event: %w", err)
	}
	return asynq.NewTask(TypeQuoteNotification, payload), nil
}

// Notify implements events.Notifier.
func (e Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if e.Client == nil || !e.wants(ev.Topic) {
		return nil
	}
	task, err := NewTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

func (e Enqueuer) wants(topic string) bool {
	topics := e.Topics
	if len(topics) == 0 {
		topics = events.DefaultTopics()
	}
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
