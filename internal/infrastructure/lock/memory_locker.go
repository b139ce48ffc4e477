// Package lock provides keyed mutual exclusion with a bounded wait.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Option configures a locker
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *zap.Logger
}

// WithTimeout bounds how long Acquire waits for a held key
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: defaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryLocker serializes holders of the same key within one process.
// Each key is a one-slot semaphore that is dropped when nobody holds or
// waits for it.
type MemoryLocker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
	logger  *zap.Logger
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewMemoryLocker creates a new MemoryLocker
func NewMemoryLocker(opts ...Option) *MemoryLocker {
	o := buildOptions(opts)
	return &MemoryLocker{
		slots:   make(map[string]*slot),
		timeout: o.timeout,
		logger:  o.logger,
	}
}

// Acquire waits up to the locker timeout for key. The returned release
// function is safe to call more than once.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
	case <-timer.C:
		l.unref(key, s)
		l.logger.Warn("Lock wait timed out",
			zap.String("key", key),
			zap.Duration("timeout", l.timeout))
		return nil, shared.NewResourceBusyError(key)
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.unref(key, s)
		})
	}, nil
}

// Held returns the number of keys currently held or waited for
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *MemoryLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

var _ shared.KeyedLocker = (*MemoryLocker)(nil)
