// Package cache holds the catalog read cache and its invalidation plumbing.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultSweepInterval = time.Minute
	defaultAuditSize     = 100
	// invalidations remembered for the compute/invalidate race check
	invalidationHistory = 256
)

// Metrics receives cache lookups
type Metrics interface {
	RecordCacheLookup(ctx context.Context, name string, hit bool)
}

// Broadcaster forwards local invalidations to peer processes
type Broadcaster interface {
	Publish(ctx context.Context, scope shared.CacheScope) error
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits          int64      `json:"hits"`
	Misses        int64      `json:"misses"`
	Entries       int        `json:"entries"`
	HitRate       float64    `json:"hit_rate"`
	Invalidations int64      `json:"invalidations"`
	Flushes       int64      `json:"flushes"`
	LastFlushAt   *time.Time `json:"last_flush_at,omitempty"`
}

// AuditEntry records one administrative flush
type AuditEntry struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Scope   string    `json:"scope"`
	Reason  string    `json:"reason"`
	Removed int       `json:"removed"`
}

type entry struct {
	key       shared.CacheKey
	value     any
	expiresAt time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type invalidation struct {
	generation uint64
	scope      shared.CacheScope
}

// Coordinator is the process-local read cache. Reads are lock-free; writes
// and invalidations are serialized so that a result computed before an
// overlapping invalidation is never stored.
type Coordinator struct {
	entries sync.Map // map[string]*entry
	flight  singleflight.Group

	// mu guards generation, recent and stores into entries
	mu         sync.Mutex
	generation atomic.Uint64
	recent     []invalidation

	ttl         time.Duration
	broadcaster Broadcaster
	metrics     Metrics
	logger      *zap.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
	flushes       atomic.Int64
	lastFlush     atomic.Pointer[time.Time]

	auditMu   sync.Mutex
	audit     []AuditEntry
	auditSize int

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	origin        string
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTTL sets how long entries live
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often expired entries are removed
func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithAuditSize bounds the flush audit log
func WithAuditSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.auditSize = n
		}
	}
}

// WithBroadcaster publishes every local invalidation to peers
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Coordinator) {
		c.broadcaster = b
	}
}

// WithOrigin sets the id peers see on this process's broadcasts
func WithOrigin(origin string) Option {
	return func(c *Coordinator) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// WithMetrics reports hits and misses
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator and starts its expiry sweeper.
// Call Close to stop the sweeper.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		auditSize:     defaultAuditSize,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
		origin:        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.sweepExpired()
	return c
}

// Origin identifies this process in broadcast invalidations
func (c *Coordinator) Origin() string {
	return c.origin
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent misses for the same key share one compute.
func (c *Coordinator) GetOrCompute(ctx context.Context, key shared.CacheKey, compute func(ctx context.Context) (any, error)) (any, error) {
	k := key.String()
	if v, ok := c.entries.Load(k); ok {
		e := v.(*entry)
		if !e.isExpired(time.Now()) {
			c.hits.Add(1)
			c.record(ctx, key.Name, true)
			return e.value, nil
		}
		c.entries.CompareAndDelete(k, v)
	}
	c.misses.Add(1)
	c.record(ctx, key.Name, false)

	started := c.generation.Load()
	flightKey := k + "@" + strconv.FormatUint(started, 10)
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, k, value, started)
		return value, nil
	})
	return v, err
}

// store keeps value unless an invalidation overlapping key happened after
// the compute started
func (c *Coordinator) store(key shared.CacheKey, k string, value any, started uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation.Load() != started {
		if len(c.recent) == 0 || c.recent[0].generation > started+1 {
			// history no longer reaches back to the compute start
			return
		}
		for _, inv := range c.recent {
			if inv.generation > started && key.Overlaps(inv.scope) {
				return
			}
		}
	}
	c.entries.Store(k, &entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)})
}

// Invalidate drops every entry overlapping scope and forwards the scope to
// peers. Call it only after the mutation has committed.
func (c *Coordinator) Invalidate(ctx context.Context, scope shared.CacheScope) {
	if scope.IsEmpty() {
		return
	}
	removed := c.apply(scope)
	c.logger.Debug("Cache invalidated",
		zap.String("scope", scope.String()),
		zap.Int("removed", removed))

	if c.broadcaster != nil {
		if err := c.broadcaster.Publish(ctx, scope); err != nil {
			c.logger.Warn("Failed to broadcast cache invalidation",
				zap.String("scope", scope.String()),
				zap.Error(err))
		}
	}
}

// ApplyRemote drops entries for an invalidation received from a peer
func (c *Coordinator) ApplyRemote(scope shared.CacheScope) {
	removed := c.apply(scope)
	c.logger.Debug("Applied remote cache invalidation",
		zap.String("scope", scope.String()),
		zap.Int("removed", removed))
}

func (c *Coordinator) apply(scope shared.CacheScope) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generation.Add(1)
	c.recent = append(c.recent, invalidation{generation: gen, scope: scope})
	if len(c.recent) > invalidationHistory {
		c.recent = c.recent[len(c.recent)-invalidationHistory:]
	}
	c.invalidations.Add(1)

	removed := 0
	c.entries.Range(func(k, v any) bool {
		if v.(*entry).key.Overlaps(scope) {
			c.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// FlushAll drops every entry and records the flush
func (c *Coordinator) FlushAll(ctx context.Context, actor, reason string) int {
	return c.flush(ctx, shared.AllScope(), actor, reason)
}

// FlushShop drops entries that may contain the shop's listings
func (c *Coordinator) FlushShop(ctx context.Context, shopID uuid.UUID, actor, reason string) int {
	return c.flush(ctx, shared.ShopScope(shopID), actor, reason)
}

// FlushCategory drops entries that may contain the category's listings
func (c *Coordinator) FlushCategory(ctx context.Context, categoryID uuid.UUID, actor, reason string) int {
	return c.flush(ctx, shared.CategoryScope(categoryID), actor, reason)
}

func (c *Coordinator) flush(ctx context.Context, scope shared.CacheScope, actor, reason string) int {
	removed := c.apply(scope)
	if c.broadcaster != nil {
		if err := c.broadcaster.Publish(ctx, scope); err != nil {
			c.logger.Warn("Failed to broadcast cache flush", zap.Error(err))
		}
	}

	now := time.Now()
	c.flushes.Add(1)
	c.lastFlush.Store(&now)
	c.appendAudit(AuditEntry{At: now, Actor: actor, Scope: scope.String(), Reason: reason, Removed: removed})

	c.logger.Info("Cache flushed",
		zap.String("actor", actor),
		zap.String("scope", scope.String()),
		zap.String("reason", reason),
		zap.Int("removed", removed))
	return removed
}

func (c *Coordinator) appendAudit(e AuditEntry) {
	c.auditMu.Lock()
	defer c.auditMu.Unlock()
	c.audit = append(c.audit, e)
	if len(c.audit) > c.auditSize {
		c.audit = c.audit[len(c.audit)-c.auditSize:]
	}
}

// Audit returns recorded flushes, newest first
func (c *Coordinator) Audit() []AuditEntry {
	c.auditMu.Lock()
	defer c.auditMu.Unlock()
	out := make([]AuditEntry, len(c.audit))
	for i, e := range c.audit {
		out[len(c.audit)-1-i] = e
	}
	return out
}

// Stats returns current counters
func (c *Coordinator) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Hits:          hits,
		Misses:        misses,
		Entries:       c.Len(),
		Invalidations: c.invalidations.Load(),
		Flushes:       c.flushes.Load(),
		LastFlushAt:   c.lastFlush.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Len returns the number of stored entries, including expired ones not yet swept
func (c *Coordinator) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the expiry sweeper
func (c *Coordinator) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}

func (c *Coordinator) record(ctx context.Context, name string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ctx, name, hit)
	}
}

func (c *Coordinator) sweepExpired() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache sweep", zap.Any("panic", r))
					}
				}()
				c.sweep(time.Now())
			}()
		}
	}
}

func (c *Coordinator) sweep(now time.Time) int {
	removed := 0
	c.entries.Range(func(k, v any) bool {
		if v.(*entry).isExpired(now) {
			c.entries.CompareAndDelete(k, v)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Swept expired cache entries", zap.Int("removed", removed))
	}
	return removed
}

var _ shared.CacheInvalidator = (*Coordinator)(nil)
