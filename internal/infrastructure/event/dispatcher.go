// Package event delivers domain events to subscribed handlers in the
// background. Publishing never waits for handlers and handler failures never
// reach the publisher.
package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const defaultHandlerTimeout = 5 * time.Second

// DispatcherOption configures an AsyncDispatcher
type DispatcherOption func(*AsyncDispatcher)

// WithHandlerTimeout bounds each handler invocation
func WithHandlerTimeout(d time.Duration) DispatcherOption {
	return func(a *AsyncDispatcher) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// AsyncDispatcher implements shared.EventBus. Every (event, handler) pair runs
// in its own goroutine under a timeout; Stop waits for in-flight deliveries.
type AsyncDispatcher struct {
	registry *HandlerRegistry
	timeout  time.Duration
	logger   *zap.Logger
	running  atomic.Bool
	inflight sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewAsyncDispatcher creates a stopped dispatcher; call Start before publishing
func NewAsyncDispatcher(logger *zap.Logger, opts ...DispatcherOption) *AsyncDispatcher {
	a := &AsyncDispatcher{
		registry: NewHandlerRegistry(),
		timeout:  defaultHandlerTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish schedules delivery of events and returns immediately. Events
// published while the dispatcher is stopped are dropped with a warning.
func (a *AsyncDispatcher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !a.running.Load() {
		for _, e := range events {
			a.logger.Warn("Event dispatcher stopped, dropping event",
				zap.String("event_type", e.EventType()),
				zap.String("event_id", e.EventID().String()))
		}
		return nil
	}

	// handlers outlive the request that produced the event
	base := context.WithoutCancel(ctx)
	for _, e := range events {
		for _, h := range a.registry.HandlersFor(e.EventType()) {
			a.inflight.Add(1)
			go a.deliver(base, h, e)
		}
	}
	return nil
}

func (a *AsyncDispatcher) deliver(ctx context.Context, handler shared.EventHandler, e shared.DomainEvent) {
	defer a.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := a.invoke(ctx, handler, e)
	if err == nil {
		a.delivered.Add(1)
		return
	}
	a.failed.Add(1)
	a.logger.Error("Event handler failed",
		zap.String("event_type", e.EventType()),
		zap.String("event_id", e.EventID().String()),
		zap.String("aggregate_id", e.AggregateID().String()),
		zap.String("handler", fmt.Sprintf("%T", handler)),
		zap.Error(err))
}

func (a *AsyncDispatcher) invoke(ctx context.Context, handler shared.EventHandler, e shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, e)
}

// Subscribe registers handler for eventTypes, defaulting to handler.EventTypes()
func (a *AsyncDispatcher) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	a.registry.Register(handler, eventTypes...)
	a.logger.Debug("Event handler subscribed",
		zap.String("handler", fmt.Sprintf("%T", handler)),
		zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type
func (a *AsyncDispatcher) Unsubscribe(handler shared.EventHandler) {
	a.registry.Unregister(handler)
}

// Start begins accepting events
func (a *AsyncDispatcher) Start(ctx context.Context) error {
	a.running.Store(true)
	a.logger.Info("Event dispatcher started", zap.Int("handlers", a.registry.Len()))
	return nil
}

// Stop stops accepting events and waits for in-flight deliveries until ctx
// is done
func (a *AsyncDispatcher) Stop(ctx context.Context) error {
	a.running.Store(false)

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("Event dispatcher stopped",
			zap.Int64("delivered", a.delivered.Load()),
			zap.Int64("failed", a.failed.Load()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event handlers: %w", ctx.Err())
	}
}

// Drain waits for deliveries already scheduled
func (a *AsyncDispatcher) Drain() {
	a.inflight.Wait()
}

// Delivered returns the number of successful deliveries
func (a *AsyncDispatcher) Delivered() int64 { return a.delivered.Load() }

// Failed returns the number of failed or timed out deliveries
func (a *AsyncDispatcher) Failed() int64 { return a.failed.Load() }

var _ shared.EventBus = (*AsyncDispatcher)(nil)
