package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLease     = 2 * time.Minute
	defaultKeyPrefix = "procurement:lock:"
	pollInterval     = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes holders of the same key across processes.
// A holder that dies keeps the key until its lease expires.
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
	lease     time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a locker over an existing client. lease must outlive
// the longest critical section.
func NewRedisLocker(client redis.UniversalClient, lease time.Duration, opts ...Option) *RedisLocker {
	o := buildOptions(opts)
	if lease <= 0 {
		lease = defaultLease
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		lease:     lease,
		timeout:   o.timeout,
		logger:    o.logger,
	}
}

// Acquire polls SET NX until the key is free or the timeout passes
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			l.logger.Warn("Lock wait timed out",
				zap.String("key", key),
				zap.Duration("timeout", l.timeout))
			return nil, shared.NewResourceBusyError(key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Error("Failed to release lock",
				zap.String("key", key),
				zap.Error(err))
		}
	}, nil
}

var _ shared.KeyedLocker = (*RedisLocker)(nil)
