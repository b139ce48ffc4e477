package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Test", uuid.New())}
}

func startedDispatcher(t *testing.T, opts ...DispatcherOption) (*AsyncDispatcher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	d := NewAsyncDispatcher(zap.New(core), opts...)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d, logs
}

func TestAsyncDispatcher_DeliversByType(t *testing.T) {
	d, _ := startedDispatcher(t)
	placed := testutil.NewMockEventHandler("OrderStatusChanged")
	everything := testutil.NewMockEventHandler()
	d.Subscribe(placed)
	d.Subscribe(everything)

	require.NoError(t, d.Publish(context.Background(), newTestEvent("OrderStatusChanged"), newTestEvent("Other")))
	d.Drain()

	assert.Equal(t, 1, placed.HandledCount())
	assert.Equal(t, 2, everything.HandledCount())
	assert.Equal(t, int64(3), d.Delivered())
}

func TestAsyncDispatcher_PublishDoesNotWaitForHandlers(t *testing.T) {
	d, _ := startedDispatcher(t)
	release := make(chan struct{})
	slow := &blockingHandler{release: release}
	d.Subscribe(slow, "Slow")

	done := make(chan struct{})
	go func() {
		_ = d.Publish(context.Background(), newTestEvent("Slow"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a handler")
	}
	close(release)
	d.Drain()
	assert.Equal(t, int64(1), d.Delivered())
}

func TestAsyncDispatcher_FailuresAreLogged(t *testing.T) {
	d, logs := startedDispatcher(t, WithHandlerTimeout(20*time.Millisecond))

	failing := testutil.NewMockEventHandler("E")
	failing.SetError(errors.New("webhook down"))
	d.Subscribe(failing)
	d.Subscribe(&blockingHandler{release: make(chan struct{})}, "E")
	d.Subscribe(panicHandler{}, "E")

	require.NoError(t, d.Publish(context.Background(), newTestEvent("E")))
	d.Drain()

	assert.Equal(t, int64(3), d.Failed())
	assert.Equal(t, 3, logs.FilterMessage("Event handler failed").Len())
}

func TestAsyncDispatcher_HandlersOutliveTheRequest(t *testing.T) {
	d, _ := startedDispatcher(t)
	h := testutil.NewMockEventHandler("E")
	d.Subscribe(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Publish(ctx, newTestEvent("E")))
	d.Drain()
	assert.Equal(t, int64(1), d.Delivered())
}

func TestAsyncDispatcher_StoppedDropsEvents(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewAsyncDispatcher(zap.New(core))
	h := testutil.NewMockEventHandler("E")
	d.Subscribe(h)

	require.NoError(t, d.Publish(context.Background(), newTestEvent("E")))
	d.Drain()
	assert.Zero(t, h.HandledCount())
	assert.Equal(t, 1, logs.FilterMessage("Event dispatcher stopped, dropping event").Len())
}

func TestAsyncDispatcher_StopWaitsForInflight(t *testing.T) {
	d := NewAsyncDispatcher(zap.NewNop())
	require.NoError(t, d.Start(context.Background()))
	release := make(chan struct{})
	d.Subscribe(&blockingHandler{release: release, ignoreCtx: true}, "E")
	require.NoError(t, d.Publish(context.Background(), newTestEvent("E")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, d.Stop(context.Background()))
}

func TestAsyncDispatcher_Unsubscribe(t *testing.T) {
	d, _ := startedDispatcher(t)
	h := testutil.NewMockEventHandler("E")
	d.Subscribe(h)
	d.Unsubscribe(h)

	require.NoError(t, d.Publish(context.Background(), newTestEvent("E")))
	d.Drain()
	assert.Zero(t, h.HandledCount())
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	a := testutil.NewMockEventHandler()
	b := testutil.NewMockEventHandler()

	r.Register(a, "X", "Y")
	r.Register(b)
	assert.Len(t, r.HandlersFor("X"), 2)
	assert.Len(t, r.HandlersFor("Z"), 1)
	assert.Equal(t, 2, r.Len())

	r.Unregister(a)
	assert.Equal(t, []shared.EventHandler{b}, r.HandlersFor("X"))
	r.Unregister(b)
	assert.Empty(t, r.HandlersFor("X"))
	assert.Zero(t, r.Len())
}

type blockingHandler struct {
	release   chan struct{}
	ignoreCtx bool
}

func (h *blockingHandler) EventTypes() []string { return nil }

func (h *blockingHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	if h.ignoreCtx {
		<-h.release
		return nil
	}
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicHandler struct{}

func (panicHandler) EventTypes() []string { return nil }

func (panicHandler) Handle(context.Context, shared.DomainEvent) error {
	panic("boom")
}
