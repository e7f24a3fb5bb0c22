package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

func sampleEvent() events.Event {
	return events.Event{
		ID:          "evt-42",
		Topic:       events.TopicCheckoutSubmitted,
		AggregateID: "sess-1",
		Payload:     []byte(`{"kode_tagihan":"INV-1"}`),
		OccurredAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func httpClient(srv *httptest.Server) resilience.HTTPClient {
	return resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(100, 1, time.Second),
		MaxAttempts: 1,
		Timeout:     time.Second,
		Target:      "webhook-delivery",
	}
}

func TestSignatureAndHeaders(t *testing.T) {
	type recorded struct {
		req  *http.Request
		body []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{req: r, body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	hook := notify.Webhook{URL: srv.URL, Secret: "secret", HTTP: httpClient(srv)}
	status, err := hook.Deliver(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	record := <-received
	req := record.req
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, "evt-42", req.Header.Get("X-Event-ID"))
	require.Equal(t, "evt-42", req.Header.Get("X-Idempotency-Key"))
	ts, err := strconv.ParseInt(req.Header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, notify.ComputeSignature("secret", ts, "evt-42", record.body), req.Header.Get("X-Signature"))
	require.JSONEq(t, `{"eventId":"evt-42","topic":"checkout.submitted","sessionId":"sess-1","data":{"kode_tagihan":"INV-1"},"occurredAt":"2024-03-01T10:00:00Z"}`, string(record.body))
}

func TestDeliverRejectsPlainHTTPOutsideLocalhost(t *testing.T) {
	hook := notify.Webhook{URL: "http://example.com/hook", HTTP: resilience.HTTPClient{Client: http.DefaultClient}}
	_, err := hook.Deliver(context.Background(), sampleEvent())
	require.Error(t, err)
}

func TestReplayProtectionSuppressesDuplicates(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	hook := notify.Webhook{
		URL:       srv.URL,
		HTTP:      httpClient(srv),
		Replay:    notify.RedisReplayProtector{Client: client},
		ReplayTTL: time.Minute,
	}
	for i := 0; i < 3; i++ {
		_, err := hook.Deliver(context.Background(), sampleEvent())
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestReplayGuardReleasedOnServerError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	hook := notify.Webhook{
		URL:       srv.URL,
		HTTP:      httpClient(srv),
		Replay:    notify.RedisReplayProtector{Client: client},
		ReplayTTL: time.Minute,
	}
	_, err = hook.Deliver(context.Background(), sampleEvent())
	require.Error(t, err)
	require.NotErrorIs(t, err, notify.ErrRejected)

	status, err := hook.Deliver(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestWorkerSkipsRetryOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	worker := notify.Worker{Webhook: notify.Webhook{URL: srv.URL, HTTP: httpClient(srv)}, Logger: zerolog.Nop()}
	task, err := events.NewTask(sampleEvent())
	require.NoError(t, err)

	err = worker.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, notify.ErrRejected)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerRetriesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	worker := notify.Worker{Webhook: notify.Webhook{URL: srv.URL, HTTP: httpClient(srv)}, Logger: zerolog.Nop()}
	task, err := events.NewTask(sampleEvent())
	require.NoError(t, err)

	err = worker.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerRegistersHandler(t *testing.T) {
	var delivered int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	mux := asynq.NewServeMux()
	notify.Worker{Webhook: notify.Webhook{URL: srv.URL, HTTP: httpClient(srv)}, Logger: zerolog.Nop()}.Register(mux)

	task, err := events.NewTask(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Equal(t, int32(1), atomic.LoadInt32(&delivered))
}
