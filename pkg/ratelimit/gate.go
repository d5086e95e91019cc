// Package ratelimit is the per-identity sliding-window admission gate
// shared by all ingress paths. The window lives in a shared store as a
// sorted set of request timestamps; admission is a single atomic
// drop-count-check-add script against that store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRateLimited is the admission denial. Callers surface it with a
	// Retry-After hint; it is never converted to a server error.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnavailable means the backing store could not be reached. The
	// caller must fail secure with a 503-equivalent.
	ErrUnavailable = errors.New("rate limit store unavailable")
)

// Config is one window shape.
type Config struct {
	Window time.Duration
	Max    int
}

// Default window shapes.
var (
	DefaultConfig   = Config{Window: 60 * time.Second, Max: 100}
	ExpensiveConfig = Config{Window: 60 * time.Second, Max: 10}
)

// Decision reports the state of the window after an admitted request.
type Decision struct {
	Remaining  int
	ResetAt    int64 // epoch seconds when the current window expires
	RetryAfter int   // seconds, only meaningful on denial
	Limit      int
	Window     string // "default" or "expensive"
}

// Store is the shared sliding-window backend. Admit must be atomic: drop
// members older than the window, count, deny at the limit, otherwise add
// the new member and refresh the key TTL.
type Store interface {
	Admit(ctx context.Context, bucket, member string, nowMs, windowMs int64, limit int, ttlSec int) (count int, admitted bool, err error)
}

// Gate applies the default or expensive window per request path.
type Gate struct {
	store          Store
	defaultCfg     Config
	expensiveCfg   Config
	expensivePaths []string
	now            func() time.Time
}

// NewGate builds a gate. expensivePaths is a path prefix allowlist that
// selects the expensive window.
func NewGate(store Store, defaultCfg, expensiveCfg Config, expensivePaths []string) *Gate {
	return &Gate{
		store:          store,
		defaultCfg:     defaultCfg,
		expensiveCfg:   expensiveCfg,
		expensivePaths: expensivePaths,
		now:            time.Now,
	}
}

// configFor picks the window shape for a path.
func (g *Gate) configFor(path string) (Config, string) {
	for _, prefix := range g.expensivePaths {
		if strings.HasPrefix(path, prefix) {
			return g.expensiveCfg, "expensive"
		}
	}
	return g.defaultCfg, "default"
}

// Admit decides whether one request from identity on path may proceed.
// Denials return ErrRateLimited with a populated Decision; store failures
// return ErrUnavailable and are never counted as denials.
func (g *Gate) Admit(ctx context.Context, identity, path string) (Decision, error) {
	cfg, prefix := g.configFor(path)
	bucket := prefix + ":" + identity
	windowMs := cfg.Window.Milliseconds()
	nowMs := g.now().UnixMilli()
	// key TTL covers the whole window (rounded up) plus a second of slack
	ttlSec := int((windowMs+999)/1000) + 1

	member := fmt.Sprintf("%d-%s", nowMs, uuid.New().String())
	count, admitted, err := g.store.Admit(ctx, bucket, member, nowMs, windowMs, cfg.Max, ttlSec)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resetAt := (nowMs + windowMs) / 1000
	if !admitted {
		return Decision{
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: int(cfg.Window.Seconds()),
			Limit:      cfg.Max,
			Window:     prefix,
		}, ErrRateLimited
	}

	remaining := cfg.Max - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Remaining: remaining, ResetAt: resetAt, Limit: cfg.Max, Window: prefix}, nil
}
