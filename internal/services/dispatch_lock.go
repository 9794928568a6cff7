package services

import (
	"strconv"
	"time"

	"github.com/coachdesk/campaign-gateway/pkg/redis"
)

const dispatchLockKey = "dispatch:run-lock"

// RedisDispatchLock serializes polling cycles across dispatcher replicas with
// a SET NX key. The TTL covers a crashed holder: the next cycle simply waits
// until it expires.
type RedisDispatchLock struct {
	redis redis.RedisAdapter
	key   string
	ttl   time.Duration
}

func NewRedisDispatchLock(adapter redis.RedisAdapter, ttl time.Duration) *RedisDispatchLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisDispatchLock{
		redis: adapter,
		key:   dispatchLockKey,
		ttl:   ttl,
	}
}

func (l *RedisDispatchLock) Acquire() (bool, error) {
	value := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	return l.redis.SetNX(l.key, value, l.ttl)
}

func (l *RedisDispatchLock) Release() error {
	return l.redis.Del(l.key)
}
