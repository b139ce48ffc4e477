package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/procurement/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCloseTimeout     = 5 * time.Second
	DefaultBroadcastChannel = "procurement:cache:invalidate"
)

// InvalidationMessage is the payload exchanged between processes
type InvalidationMessage struct {
	Origin    string            `json:"origin"`
	Scope     shared.CacheScope `json:"scope"`
	Timestamp int64             `json:"timestamp"`
}

// RedisInvalidationBroadcaster shares cache invalidations between processes
// over Redis Pub/Sub. Messages published by the same origin are ignored on
// receipt.
type RedisInvalidationBroadcaster struct {
	client    redis.UniversalClient
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// BroadcasterOption configures the broadcaster
type BroadcasterOption func(*RedisInvalidationBroadcaster)

// WithChannel sets the Pub/Sub channel name
func WithChannel(channel string) BroadcasterOption {
	return func(b *RedisInvalidationBroadcaster) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithBroadcasterLogger sets the logger
func WithBroadcasterLogger(logger *zap.Logger) BroadcasterOption {
	return func(b *RedisInvalidationBroadcaster) {
		b.logger = logger
	}
}

// NewRedisInvalidationBroadcaster creates a broadcaster over an existing
// client. The caller keeps ownership of the client. origin identifies the
// local process; use Coordinator.Origin.
func NewRedisInvalidationBroadcaster(client redis.UniversalClient, origin string, opts ...BroadcasterOption) *RedisInvalidationBroadcaster {
	b := &RedisInvalidationBroadcaster{
		client:  client,
		channel: DefaultBroadcastChannel,
		origin:  origin,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends scope to every subscriber
func (b *RedisInvalidationBroadcaster) Publish(ctx context.Context, scope shared.CacheScope) error {
	data, err := json.Marshal(InvalidationMessage{
		Origin:    b.origin,
		Scope:     scope,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	b.logger.Debug("Published cache invalidation",
		zap.String("channel", b.channel),
		zap.String("scope", scope.String()))
	return nil
}

// Subscribe applies invalidations from other processes until ctx is done or
// Close is called. It blocks; run it in a goroutine.
func (b *RedisInvalidationBroadcaster) Subscribe(ctx context.Context, apply func(scope shared.CacheScope)) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	b.logger.Info("Subscribed to cache invalidation channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Cache invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Cache invalidation channel closed")
				return nil
			}
			b.handle(msg.Payload, apply)
		}
	}
}

func (b *RedisInvalidationBroadcaster) handle(payload string, apply func(scope shared.CacheScope)) {
	var m InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.logger.Error("Failed to unmarshal invalidation",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}
	if m.Origin == b.origin {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic applying remote invalidation", zap.Any("panic", r))
		}
	}()
	apply(m.Scope)
}

func (b *RedisInvalidationBroadcaster) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription
func (b *RedisInvalidationBroadcaster) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

var _ Broadcaster = (*RedisInvalidationBroadcaster)(nil)
