package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness; shutdown flips it off so load balancers drain.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingMarketplace(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Pinger is implemented by the marketplace client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks the marketplace API and, when configured, Redis.
type Probes struct {
	Marketplace Pinger
	Redis       redis.UniversalClient
}

// PingMarketplace verifies the marketplace API answers.
func (p Probes) PingMarketplace(ctx context.Context, timeout time.Duration) error {
	if p.Marketplace == nil {
		return errors.New("marketplace client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Marketplace.Ping(ctx)
}

// PingRedis verifies Redis connectivity. Running without Redis is healthy.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker            Checker
	MarketplaceTimeout time.Duration
	RedisTimeout       time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	marketStatus := "ok"
	if err := h.Checker.PingMarketplace(ctx, h.marketplaceTimeout()); err != nil {
		marketStatus = err.Error()
	}
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	status := map[string]string{
		"marketplace": marketStatus,
		"redis":       redisStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if marketStatus != "ok" || redisStatus != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) marketplaceTimeout() time.Duration {
	if h.MarketplaceTimeout <= 0 {
		return time.Second
	}
	return h.MarketplaceTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
