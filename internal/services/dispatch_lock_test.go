package services

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coachdesk/campaign-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func TestRedisDispatchLock_AcquireAndRelease(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	lock := NewRedisDispatchLock(adapter, time.Minute)

	ok, err := lock.Acquire()
	require.NoError(t, err)
	assert.True(t, ok)

	// second holder loses while the lock is held
	ok, err = lock.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release())

	ok, err = lock.Acquire()
	require.NoError(t, err)
	assert.True(t, ok, "released lock is acquirable again")
}

func TestRedisDispatchLock_TTLExpiry(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	lock := NewRedisDispatchLock(adapter, time.Second)

	ok, err := lock.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	// a crashed holder never releases; the TTL covers it
	mr.FastForward(2 * time.Second)

	ok, err = lock.Acquire()
	require.NoError(t, err)
	assert.True(t, ok)
}
