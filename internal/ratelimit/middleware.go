package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-checkout/internal/common"
)

const defaultPrefix = "ratelimit"

// NewStore returns a Redis-backed store shared by all replicas, or an
// in-process store when no client is configured.
func NewStore(client redis.UniversalClient) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          defaultPrefix,
			CleanUpInterval: time.Minute,
		}), nil
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: defaultPrefix})
}

// PerMinute builds a limiter allowing max requests per key per minute.
func PerMinute(store limiter.Store, max int) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: int64(max)})
}

// ByClientIP keys requests by the caller's address. Forwarded headers count
// only when trustForwarded is set.
func ByClientIP(trustForwarded bool) func(*http.Request) string {
	return func(r *http.Request) string {
		return common.ClientIP(r, trustForwarded)
	}
}

// Handler enforces rate limits before delegating to the next handler.
// A nil Limiter or Key disables limiting. Store errors fail open.
type Handler struct {
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil || h.Limiter.Rate.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := h.Limiter.Get(r.Context(), h.Key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.WriteError(w, common.NewAppError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests, nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
