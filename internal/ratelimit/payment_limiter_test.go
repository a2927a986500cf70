package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/revenue/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentLimiterWithoutRedisAllowsEverything(t *testing.T) {
	l := NewPaymentLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, nil)
	assert.False(t, l.Enabled())
	assert.False(t, l.Locking())

	res, err := l.AllowSubmit(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := l.TryLockSettlement(context.Background(), "42", "wtr")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.ReleaseSettlement(context.Background(), "42", "wtr", token))
}

func TestSettleLockKeyNormalizesCode(t *testing.T) {
	key, err := settleLockKey(" 42 ", "wtr")
	require.NoError(t, err)
	assert.Equal(t, "payment:settle:lock:42:WTR", key)

	_, err = settleLockKey("42", " ")
	assert.ErrorIs(t, err, ErrLockInvalidOwner)
}

func TestSettleLockWithoutClient(t *testing.T) {
	lock := NewSettleLock(nil, time.Second)
	assert.Nil(t, lock)

	_, ok, err := lock.Acquire(context.Background(), "42", "WTR")
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.False(t, ok)
	assert.NoError(t, lock.Release(context.Background(), "42", "WTR", "token"))
}

func TestBucketHelpers(t *testing.T) {
	assert.Equal(t, 50*time.Second, defaultBucketTTL(0.2, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, 2.5, castToFloat("2.5"))
	assert.Equal(t, int64(1), castToInt(int64(1)))
}

func TestNilBucketRejects(t *testing.T) {
	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.False(t, res.Allowed)
}
