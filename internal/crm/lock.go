package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshLocker serializes token refreshes for one (user, provider) key.
// The returned function releases the lock.
type RefreshLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func lockKey(userID string, provider ProviderID) string {
	return "crm:refresh:" + string(provider) + ":" + userID
}

// LocalLocker is an in-process keyed mutex
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Lock blocks until key is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				l.release(key, entry)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort lock shared by every instance talking to one Redis
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a Redis-backed locker. ttl bounds how long a crashed
// holder can block others and must exceed one token endpoint round trip.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 100 * time.Millisecond}
}

// Lock polls SET NX until it wins or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
