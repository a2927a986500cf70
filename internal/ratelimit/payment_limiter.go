package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/revenue/internal/config"
)

const keyPaymentSubmit = "payment:submit:user:%s"

// PaymentLimiter throttles payment submissions per user and serializes
// settlement per (user, service code).
type PaymentLimiter struct {
	enabled bool

	bucket *TokenBucket
	lock   *SettleLock

	rate  float64
	burst int
}

func NewPaymentLimiter(cfg config.Config, client *redis.Client) *PaymentLimiter {
	limitCfg := cfg.RateLimit
	if client == nil {
		return &PaymentLimiter{}
	}

	rate := limitCfg.PaymentRate
	if rate <= 0 {
		rate = 0.2
	}
	burst := limitCfg.PaymentBurst
	if burst <= 0 {
		burst = 5
	}

	return &PaymentLimiter{
		enabled: limitCfg.Enabled,
		bucket:  NewTokenBucket(client),
		lock:    NewSettleLock(client, limitCfg.SettleLockTTL),
		rate:    rate,
		burst:   burst,
	}
}

// Enabled reports whether submissions are throttled.
func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.enabled && l.bucket != nil
}

// Locking reports whether settlement locks are backed by redis.
func (l *PaymentLimiter) Locking() bool {
	return l != nil && l.lock != nil
}

func (l *PaymentLimiter) AllowSubmit(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPaymentSubmit, strings.TrimSpace(userID)), l.rate, l.burst)
}

// TryLockSettlement returns ok=true with an empty token when locking is disabled.
func (l *PaymentLimiter) TryLockSettlement(ctx context.Context, userID, serviceCode string) (string, bool, error) {
	if !l.Locking() {
		return "", true, nil
	}
	return l.lock.Acquire(ctx, userID, serviceCode)
}

func (l *PaymentLimiter) ReleaseSettlement(ctx context.Context, userID, serviceCode, token string) error {
	if !l.Locking() {
		return nil
	}
	return l.lock.Release(ctx, userID, serviceCode, token)
}
