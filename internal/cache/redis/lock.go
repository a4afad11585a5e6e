package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/defolio/defolio/internal/domain"
)

// unlockScript releases a lock only if the caller still owns it, so a lock
// that expired and was re-acquired elsewhere is never released by the old
// holder.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// LockManager implements domain.LockManager with SET NX and a TTL. The TTL is
// the safety net against a crashed holder; callers should release explicitly.
type LockManager struct {
	client *redis.Client
}

// NewLockManager creates a LockManager over the given client.
func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// Acquire takes the named lock or returns ErrLockHeld without waiting. On
// success the returned func releases the lock; releasing after expiry is a
// no-op.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.New().String()

	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockHeld)
	}

	release := func() {
		// Release must work even when the acquiring context is done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, m.client, []string{key}, token).Err()
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
