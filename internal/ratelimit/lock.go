package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keySettleLock = "payment:settle:lock:%s:%s"

// releaseIfOwner deletes the lock only while it still holds the caller's token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var (
	ErrLockNotConfigured = errors.New("settle_lock_not_configured")
	ErrLockInvalidOwner  = errors.New("settle_lock_invalid_owner")
)

// SettleLock is a redis lease held for one (user, service code) settlement.
// An expired lease is free for the next attempt even if Release never ran.
type SettleLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSettleLock(client *redis.Client, ttl time.Duration) *SettleLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettleLock{client: client, ttl: ttl}
}

// Acquire returns the lease token and ok=false when another settlement
// for the same owner and code is running.
func (l *SettleLock) Acquire(ctx context.Context, userID, serviceCode string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	key, err := settleLockKey(userID, serviceCode)
	if err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *SettleLock) Release(ctx context.Context, userID, serviceCode, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	key, err := settleLockKey(userID, serviceCode)
	if err != nil {
		return err
	}
	return releaseIfOwner.Run(ctx, l.client, []string{key}, token).Err()
}

func settleLockKey(userID, serviceCode string) (string, error) {
	userID = strings.TrimSpace(userID)
	serviceCode = strings.ToUpper(strings.TrimSpace(serviceCode))
	if userID == "" || serviceCode == "" {
		return "", ErrLockInvalidOwner
	}
	return fmt.Sprintf(keySettleLock, userID, serviceCode), nil
}
