package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/events"
)

// ErrRejected marks a delivery the receiver refused with a 4xx status;
// retrying it will not help.
var ErrRejected = errors.New("notify: webhook rejected")

// Doer executes HTTP requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Webhook posts checkout events to a single downstream endpoint.
type Webhook struct {
	URL       string
	Secret    string
	HTTP      Doer
	Replay    ReplayProtector
	ReplayTTL time.Duration
	Now       func() time.Time
}

// Deliver sends ev signed with the endpoint secret. A 2xx response is a
// success; 4xx responses wrap ErrRejected.
func (w Webhook) Deliver(ctx context.Context, ev events.Event) (int, error) {
	if w.HTTP == nil {
		return 0, errors.New("notify: http client not configured")
	}
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.event_id", ev.ID),
		attribute.String("webhook.topic", ev.Topic),
	)
	if err := validateURL(w.URL); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if w.Replay != nil && w.ReplayTTL > 0 {
		ok, err := w.Replay.Acquire(ctx, replayKey(ev.ID), w.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, nil
		}
	}

	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		SessionID  string          `json:"sessionId"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    ev.ID,
		Topic:      ev.Topic,
		SessionID:  ev.AggregateID,
		Data:       ev.Payload,
		OccurredAt: ev.OccurredAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-checkout-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", ev.ID)
	req.Header.Set("X-Signature", ComputeSignature(w.Secret, ts, ev.ID, body))

	resp, err := w.HTTP.Do(ctx, req)
	if err != nil {
		w.release(ctx, ev.ID)
		span.RecordError(err)
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		w.release(ctx, ev.ID)
		err := fmt.Errorf("notify: webhook status %d", resp.StatusCode)
		span.RecordError(err)
		return resp.StatusCode, err
	}
}

// release drops the replay guard so the next retry is not suppressed.
func (w Webhook) release(ctx context.Context, eventID string) {
	if w.Replay == nil || w.ReplayTTL <= 0 {
		return
	}
	_ = w.Replay.Release(context.WithoutCancel(ctx), replayKey(eventID))
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

func replayKey(eventID string) string {
	return "wh:checkout:" + eventID
}
