package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/smilequote/internal/events"
)

// ErrDeliveryFailed marks a non-2xx webhook response; asynq retries it.
var ErrDeliveryFailed = errors.New("notify: webhook delivery failed")

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplayProtector claims delivery keys with SET NX. The stored value is
// the claim time. A nil Client lets every delivery through.
type RedisReplayProtector struct {
	Client *redis.Client
}

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}

// ClinicWebhook posts signed lifecycle events to the clinic network.
type ClinicWebhook struct {
	URL       string
	Secret    string
	Client    *http.Client
	Replay    ReplayProtector
	ReplayTTL time.Duration
	Now       func() time.Time
}

// Notify delivers ev. A delivery already acknowledged within ReplayTTL is skipped.
func (c ClinicWebhook) Notify(ctx context.Context, ev events.Event) error {
	if c.URL == "" {
		return nil
	}
	ctx, span := otel.Tracer("smilequote/notify").Start(ctx, "ClinicWebhook.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.event_id", ev.ID),
		attribute.String("webhook.topic", ev.Topic),
		attribute.String("quote.id", ev.AggregateID),
	)
	if err := validateURL(c.URL); err != nil {
		span.RecordError(err)
		return err
	}

	key := "smilequote:webhook:" + ev.ID
	if c.Replay != nil && c.ReplayTTL > 0 {
		ok, err := c.Replay.Acquire(ctx, key, c.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return nil
		}
	}

	status, err := c.post(ctx, ev)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		if c.Replay != nil && c.ReplayTTL > 0 {
			_ = c.Replay.Release(context.WithoutCancel(ctx), key)
		}
		return err
	}
	return nil
}

func (c ClinicWebhook) post(ctx context.Context, ev events.Event) (int, error) {
	body, err := encodeEnvelope(ev)
	if err != nil {
		return 0, err
	}
	ts := c.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "smilequote-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", ev.ID)
	req.Header.Set("X-Signature", ComputeSignature(c.Secret, ts, ev.ID, body))

	client := c.Client
	if client == nil {
		client = HTTPClient(5 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return resp.StatusCode, nil
}

func (c ClinicWebhook) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func encodeEnvelope(ev events.Event) ([]byte, error) {
	data := ev.Payload
	if len(data) == 0 {
		data = []byte("{}")
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"eventId":%q,"topic":%q,"quoteId":%q,"occurredAt":%q,"data":`,
		ev.ID, ev.Topic, ev.AggregateID, ev.OccurredAt.UTC().Format(time.RFC3339))
	buf.Write(data)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return errors.New("http webhook only allowed for localhost")
	default:
		return errors.New("webhook url must be http or https")
	}
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns a traced client for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
