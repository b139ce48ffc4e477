package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/procurement/backend/internal/domain/shared"
)

// recorder is a goroutine-safe append-only log
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(items ...T) {
	r.mu.Lock()
	r.items = append(r.items, items...)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// MockEventHandler is a shared.EventHandler that records what it handles
// and fails with a preset error
type MockEventHandler struct {
	types []string
	log   recorder[shared.DomainEvent]

	mu  sync.Mutex
	err error
}

func NewMockEventHandler(eventTypes ...string) *MockEventHandler {
	return &MockEventHandler{types: eventTypes}
}

func (h *MockEventHandler) EventTypes() []string { return h.types }

func (h *MockEventHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.log.add(event)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *MockEventHandler) HandledCount() int { return len(h.log.snapshot()) }

// SetError makes later Handle calls fail with err
func (h *MockEventHandler) SetError(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// RecordingPublisher is a synchronous shared.EventPublisher
type RecordingPublisher struct {
	log recorder[shared.DomainEvent]
}

func (p *RecordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.log.add(events...)
	return nil
}

// Events are the published events in order
func (p *RecordingPublisher) Events() []shared.DomainEvent { return p.log.snapshot() }

// RecordingInvalidator is a shared.CacheInvalidator that keeps every scope
type RecordingInvalidator struct {
	log recorder[shared.CacheScope]
}

func (r *RecordingInvalidator) Invalidate(_ context.Context, scope shared.CacheScope) {
	r.log.add(scope)
}

// Scopes are the invalidated scopes in order
func (r *RecordingInvalidator) Scopes() []shared.CacheScope { return r.log.snapshot() }
