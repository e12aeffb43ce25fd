package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLeaseTTL   = 90 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
)

// ReleaseTimeout bounds the redis call that drops a lease. A lease TTL must
// outlast the guarded work plus this window.
const ReleaseTimeout = 5 * time.Second

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of the redis client the lease needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker serialises a name across processes with a token-guarded lease.
// Callers inside one process queue on a local FIFO lock first, so arrival
// order is preserved locally and only one goroutine polls redis per name.
type RedisLocker struct {
	client RedisClient
	local  *MemoryLocker
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// RedisOption customises a RedisLocker.
type RedisOption func(*RedisLocker)

// WithLeaseTTL bounds how long a crashed holder can block a name.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryDelay sets the polling interval while the lease is taken elsewhere.
func WithRetryDelay(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewRedisLocker constructs a redis-backed locker.
func NewRedisLocker(client RedisClient, logger zerolog.Logger, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		local:  NewMemoryLocker(),
		ttl:    defaultLeaseTTL,
		retry:  defaultRetryDelay,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the local slot and then the redis lease for name.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, name)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	if err := l.acquire(ctx, name, token); err != nil {
		unlockLocal()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			defer unlockLocal()
			releaseCtx, cancel := context.WithTimeout(context.Background(), ReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{name}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Error().Err(err).Str("lock", name).Msg("release redis lease")
			}
		})
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, name, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("sequencer: acquire lease %s: %w", name, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
