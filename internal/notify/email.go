package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/events"
)

// EmailNotifier tells the patient about their quote's lifecycle. With Replay
// set, each event is mailed at most once per ReplayTTL, so a task retried
// for another channel does not repeat the email.
type EmailNotifier struct {
	Mail         common.EmailSender
	From         string
	TopicToggles map[string]bool
	Replay       ReplayProtector
	ReplayTTL    time.Duration
}

// quotePayload mirrors the payload emitted on quote transitions.
type quotePayload struct {
	QuoteID  string      `json:"quoteId"`
	Status   string      `json:"status"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	ClinicID string      `json:"clinicId"`
	Total    json.Number `json:"total"`
	Discount json.Number `json:"discount"`
}

func decodeQuotePayload(ev events.Event) (quotePayload, error) {
	var p quotePayload
	if len(ev.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return p, fmt.Errorf("notify: decode payload: %w", err)
	}
	if p.QuoteID == "" {
		p.QuoteID = ev.AggregateID
	}
	return p, nil
}

// Notify sends the patient email for ev. Events without a recipient are skipped.
func (n EmailNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Mail == nil {
		return nil
	}
	if enabled, ok := n.TopicToggles[ev.Topic]; ok && !enabled {
		return nil
	}
	p, err := decodeQuotePayload(ev)
	if err != nil {
		return err
	}
	to := strings.TrimSpace(p.Email)
	if to == "" {
		return nil
	}
	guarded := n.Replay != nil && n.ReplayTTL > 0
	key := "smilequote:email:" + ev.ID
	if guarded {
		ok, err := n.Replay.Acquire(ctx, key, n.ReplayTTL)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := n.Mail.Send(ctx, to, subjectFor(ev.Topic), bodyFor(ev, p)); err != nil {
		if guarded {
			_ = n.Replay.Release(context.WithoutCancel(ctx), key)
		}
		return err
	}
	return nil
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicQuoteSubmitted:
		return "We received your treatment quote"
	case events.TopicQuoteAssigned:
		return "A clinic is reviewing your quote"
	case events.TopicQuoteCancelled:
		return "Your quote was cancelled"
	case events.TopicQuoteExpired:
		return "Your quote has expired"
	default:
		return "Quote update"
	}
}

func bodyFor(ev events.Event, p quotePayload) string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", p.Name)
	}
	fmt.Fprintf(&b, "Quote %s is now %s (%s).\n", p.QuoteID, strings.ToLower(p.Status), ev.OccurredAt.Format(time.RFC1123))
	if p.Total != "" {
		fmt.Fprintf(&b, "Estimated total: %s", p.Total)
		if p.Discount != "" && p.Discount != "0.00" {
			fmt.Fprintf(&b, " after a %s discount", p.Discount)
		}
		b.WriteString(".\n")
	}
	switch ev.Topic {
	case events.TopicQuoteSubmitted:
		b.WriteString("A partner clinic will contact you shortly.\n")
	case events.TopicQuoteExpired:
		b.WriteString("Start a new quote any time to get current prices.\n")
	}
	return b.String()
}
