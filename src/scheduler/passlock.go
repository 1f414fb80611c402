package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/username/standingbank/backend/src/logger"
)

// PassLocker guarantees that only one scheduler pass runs at a time.
// TryLock never waits: a pass that cannot lock is skipped.
type PassLocker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

// LocalPassLocker serializes passes inside one process.
type LocalPassLocker struct {
	mu sync.Mutex
}

func NewLocalPassLocker() *LocalPassLocker {
	return &LocalPassLocker{}
}

func (l *LocalPassLocker) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// DefaultPassLockKey is the Redis key guarding scheduler passes.
const DefaultPassLockKey = "standingbank:scheduler:pass"

// RedisPassLocker serializes passes across every instance sharing a Redis.
// The lock expires after ttl so a crashed instance cannot block others forever.
type RedisPassLocker struct {
	rs  *redsync.Redsync
	key string
	ttl time.Duration
}

func NewRedisPassLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisPassLocker {
	if key == "" {
		key = DefaultPassLockKey
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPassLocker{
		rs:  redsync.New(goredis.NewPool(client)),
		key: key,
		ttl: ttl,
	}
}

func (l *RedisPassLocker) TryLock(ctx context.Context) (func(), bool, error) {
	mutex := l.rs.NewMutex(l.key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) ||
			strings.Contains(err.Error(), "lock already taken") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire scheduler pass lock %s: %w", l.key, err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			logger.L.Warn("Failed to release scheduler pass lock", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}
