package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPassLocker_ExcludesSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisPassLocker(client, "", time.Minute)
	b := NewRedisPassLocker(client, "", time.Minute)
	ctx := context.Background()

	release, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second instance must skip the pass")

	release()

	releaseB, ok, err := b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}

func TestRedisPassLocker_ExpiresAfterTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisPassLocker(client, "pass", 2*time.Second)
	_, ok, err := a.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	_, ok, err = NewRedisPassLocker(client, "pass", 2*time.Second).TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "a crashed holder must not block later passes")
}

func TestLocalPassLocker(t *testing.T) {
	l := NewLocalPassLocker()
	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(context.Background())
	assert.False(t, ok)

	release()
	_, ok, _ = l.TryLock(context.Background())
	assert.True(t, ok)
}
