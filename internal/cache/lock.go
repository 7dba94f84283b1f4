package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// UnlockFunc releases a lock taken by a Locker.
type UnlockFunc func(ctx context.Context) error

type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// Only the holder of the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock with a TTL, retried a fixed number of times.
type RedisLocker struct {
	client   *redis.Client
	attempts int
	backoff  time.Duration
}

func NewRedisLocker(client *redis.Client, attempts int, backoff time.Duration) *RedisLocker {
	if attempts < 1 {
		attempts = 1
	}
	return &RedisLocker{client: client, attempts: attempts, backoff: backoff}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	token := uuid.NewString()
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.backoff):
			}
		}

		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}
	}
	return nil, ErrLockNotAcquired
}

// LocalLocker serialises holders inside one process. It is used when Redis
// is disabled and gives no protection across replicas.
type LocalLocker struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	attempts int
	backoff  time.Duration
}

func NewLocalLocker(attempts int, backoff time.Duration) *LocalLocker {
	if attempts < 1 {
		attempts = 1
	}
	return &LocalLocker{locks: map[string]*sync.Mutex{}, attempts: attempts, backoff: backoff}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.backoff):
			}
		}
		if m.TryLock() {
			var once sync.Once
			return func(context.Context) error {
				once.Do(m.Unlock)
				return nil
			}, nil
		}
	}
	return nil, ErrLockNotAcquired
}
