package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner may delete the key.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a SET NX lease held by one process at a time. The relay takes it
// for the length of one tick; the TTL frees it if the holder dies mid-tick.
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration

	mu       sync.Mutex
	acquired bool
}

// NewDistributedLock creates a lock on "lock:<key>". Each instance carries its own owner token.
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock without waiting.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, domainErrors.NewInfrastructureError("acquire lock", err)
	}

	l.mu.Lock()
	l.acquired = success
	l.mu.Unlock()
	return success, nil
}

// Release gives the lock up. Releasing a lock this instance never took is a no-op;
// releasing one that expired and was taken by someone else reports ErrLockNotHeld.
func (l *DistributedLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.acquired {
		return nil
	}
	l.acquired = false

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return domainErrors.NewInfrastructureError("release lock", err)
	}
	if result == 0 {
		return fmt.Errorf("release %s: %w", l.key, domainErrors.ErrLockNotHeld)
	}
	return nil
}
