package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reepay-bridge/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond

	keyPrefix = "reepay-bridge:lock:"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// refreshScript pushes the expiry out only while the key holds our token.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// RedisClient is the subset of go-redis the locker needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a Locker shared by every instance pointed at one Redis.
// A held lock is refreshed every ttl/3 and expires ttl after its holder
// stops refreshing it.
type RedisLocker struct {
	client       RedisClient
	ttl          time.Duration
	refreshEvery time.Duration
	retryDelay   time.Duration
}

func NewRedisLocker(client RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		refreshEvery: ttl / 3,
		retryDelay:   DefaultRetryDelay,
	}
}

func (l *RedisLocker) TTL() time.Duration {
	return l.ttl
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	log := logger.FromCtx(ctx).With(zap.String("key", key))
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(log, redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// release even when the request context is already cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
				log.Warn("Failed to release order lock", zap.Error(err))
			}
		})
	}, nil
}

// keepAlive refreshes the lock until stop is closed or the lock is lost.
func (l *RedisLocker) keepAlive(log *zap.Logger, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		refreshCtx, cancel := context.WithTimeout(context.Background(), l.refreshEvery)
		n, err := l.client.Eval(refreshCtx, refreshScript, []string{redisKey}, token, l.ttl.Milliseconds()).Int64()
		cancel()

		switch {
		case err != nil:
			log.Warn("Failed to refresh order lock", zap.Error(err))
		case n == 0:
			log.Warn("Order lock lost before release")
			return
		}
	}
}
