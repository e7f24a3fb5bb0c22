package common_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
)

func TestForwardCredentials(t *testing.T) {
	var got common.Credentials
	handler := common.ForwardCredentials("X-CSRF-TOKEN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := common.CredentialsFrom(r.Context())
		require.True(t, ok)
		got = creds
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", "laravel_session=abc")
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("X-CSRF-TOKEN", " csrf ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, common.Credentials{Cookie: "laravel_session=abc", Authorization: "Bearer t", CSRFToken: "csrf"}, got)
	require.False(t, got.Empty())
}

func TestCredentialsFromEmptyContext(t *testing.T) {
	_, ok := common.CredentialsFrom(context.Background())
	require.False(t, ok)
	require.True(t, common.Credentials{}.Empty())
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	handler := common.Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/s1/submit", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("k1"))
	require.Equal(t, http.StatusConflict, send("k1"))
	require.Equal(t, http.StatusOK, send("k2"))
	require.Equal(t, http.StatusOK, send(""))
	require.Equal(t, 3, calls)
}

type notePayload struct {
	Note    string `json:"note" validate:"max=5"`
	Address int64  `json:"address_id" validate:"required,gt=0"`
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"note":"hi","address_id":3}`))
	var ok notePayload
	require.NoError(t, common.DecodeJSON(req, &ok))
	require.Equal(t, int64(3), ok.Address)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"note":"too long"}`))
	var bad notePayload
	err := common.DecodeJSON(req, &bad)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, common.StatusOf(err))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	details := appErr.Details.(map[string]string)
	require.Equal(t, "must be at most 5", details["note"])
	require.Equal(t, "is required", details["address_id"])

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"unknown":1}`))
	require.Error(t, common.DecodeJSON(req, &bad))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.5")

	require.Equal(t, "198.51.100.7", common.ClientIP(req, false))
	require.Equal(t, "203.0.113.9", common.ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "203.0.113.5", common.ClientIP(req, true))

	req.RemoteAddr = "unix"
	require.Equal(t, "unix", common.ClientIP(req, false))
	require.Empty(t, common.ClientIP(nil, true))
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests, nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`, rr.Body.String())

	status, body := common.BodyOf(errors.New("redis: connection refused"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, common.ErrorBody{Code: "INTERNAL", Message: "internal error"}, body)

	status, body = common.BodyOf(&common.AppError{Message: "bad"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", body.Code)
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, common.StatusOf(context.Canceled))
	require.Equal(t, http.StatusConflict, common.StatusOf(common.NewAppError("X", "x", http.StatusConflict, nil)))
}
