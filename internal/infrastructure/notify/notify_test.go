package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func placedOrder(t *testing.T) (*trade.Order, *trade.OrderStatusChangedEvent) {
	t.Helper()
	contact, err := trade.NewContact(uuid.New(), trade.DeliveryAddress{
		City: "Moscow", Street: "Tverskaya", House: "1", Phone: "+7 900 000-00-00",
	})
	require.NoError(t, err)
	order, err := trade.NewOrder(contact.BuyerID, contact, []trade.LineSnapshot{{
		ListingID:    uuid.New(),
		ShopID:       uuid.New(),
		ProductName:  "Phone X",
		Model:        "X-1",
		CategoryName: "Phones",
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("199.90"),
	}})
	require.NoError(t, err)
	return order, order.PendingEvents()[0].(*trade.OrderStatusChangedEvent)
}

type otherEvent struct{ shared.BaseDomainEvent }

func TestMessageFrom(t *testing.T) {
	order, ev := placedOrder(t)

	msg, err := messageFrom(ev)
	require.NoError(t, err)
	assert.Equal(t, order.ID, msg.OrderID)
	assert.Equal(t, order.BuyerID, msg.BuyerID)
	assert.Empty(t, msg.OldStatus)
	assert.Equal(t, "NEW", msg.NewStatus)
	assert.Equal(t, "399.80", msg.Total)
	assert.Equal(t, order.ShopIDs(), msg.ShopIDs)

	_, err = messageFrom(&otherEvent{shared.NewBaseDomainEvent("Other", "Test", uuid.New())})
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	order, placed := placedOrder(t)
	order.PullEvents()
	require.NoError(t, order.Transition(trade.OrderStatusConfirmed))
	confirmed := order.PendingEvents()[0]

	require.NoError(t, n.Handle(context.Background(), placed))
	require.NoError(t, n.Handle(context.Background(), confirmed))

	assert.Equal(t, 1, logs.FilterMessage("New order notification").Len())
	status := logs.FilterMessage("Order status notification").All()
	require.Len(t, status, 1)
	assert.Equal(t, "NEW", status[0].ContextMap()["old_status"])
	assert.Equal(t, "CONFIRMED", status[0].ContextMap()["new_status"])
	assert.Equal(t, []string{trade.EventTypeOrderStatusChanged}, n.EventTypes())
}

func TestWebhookNotifier_SignsAndPosts(t *testing.T) {
	var (
		mu      sync.Mutex
		gotBody []byte
		gotHdr  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		gotHdr = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Secret: "s3cret"}, zap.NewNop())
	order, ev := placedOrder(t)
	require.NoError(t, n.Handle(context.Background(), ev))

	mu.Lock()
	defer mu.Unlock()
	var msg Message
	require.NoError(t, json.Unmarshal(gotBody, &msg))
	assert.Equal(t, order.ID, msg.OrderID)
	assert.Equal(t, "sha256="+Sign([]byte("s3cret"), gotBody), gotHdr.Get(HeaderSignature))
	assert.Equal(t, trade.EventTypeOrderStatusChanged, gotHdr.Get(HeaderEventType))
	assert.Equal(t, ev.EventID().String(), gotHdr.Get(HeaderEventID))
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
}

func TestWebhookNotifier_Unsigned(t *testing.T) {
	var signature atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature.Store(r.Header.Get(HeaderSignature))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL}, zap.NewNop())
	_, ev := placedOrder(t)
	require.NoError(t, n.Handle(context.Background(), ev))
	assert.Equal(t, "", signature.Load())
}

func TestWebhookNotifier_Failures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Retries: 1}, zap.NewNop())
	_, ev := placedOrder(t)
	err := n.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load(), "5xx is retried once")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Handle(ctx, ev))
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	confirms  chan amqp.Confirmation
	ack       bool
	silent    bool
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{confirms: make(chan amqp.Confirmation, 8), ack: true}
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	c.keys = append(c.keys, exchange+"/"+key)
	if !c.silent {
		c.confirms <- amqp.Confirmation{DeliveryTag: uint64(len(c.published)), Ack: c.ack}
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRabbitMQPublisher_PublishesConfirmed(t *testing.T) {
	ch := newFakeChannel()
	p := newRabbitMQPublisher(ch, ch.confirms, RabbitMQConfig{Exchange: "orders"}, zap.NewNop())
	order, placed := placedOrder(t)
	order.PullEvents()
	require.NoError(t, order.Transition(trade.OrderStatusCancelled))

	require.NoError(t, p.Handle(context.Background(), placed))
	require.NoError(t, p.Handle(context.Background(), order.PendingEvents()[0]))

	assert.Equal(t, []string{"orders/order.status.new", "orders/order.status.cancelled"}, ch.keys)
	first := ch.published[0]
	assert.Equal(t, "application/json", first.ContentType)
	assert.Equal(t, amqp.Persistent, first.DeliveryMode)
	assert.Equal(t, placed.EventID().String(), first.MessageId)

	var msg Message
	require.NoError(t, json.Unmarshal(first.Body, &msg))
	assert.Equal(t, order.ID, msg.OrderID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisher_Nack(t *testing.T) {
	ch := newFakeChannel()
	ch.ack = false
	p := newRabbitMQPublisher(ch, ch.confirms, RabbitMQConfig{Exchange: "orders"}, zap.NewNop())
	_, ev := placedOrder(t)

	assert.ErrorIs(t, p.Handle(context.Background(), ev), ErrPublishNotConfirmed)
}

func TestRabbitMQPublisher_ConfirmTimeoutAndLateConfirm(t *testing.T) {
	ch := newFakeChannel()
	ch.silent = true
	p := newRabbitMQPublisher(ch, ch.confirms, RabbitMQConfig{
		Exchange:       "orders",
		RoutingKey:     "shop.orders",
		ConfirmTimeout: 20 * time.Millisecond,
	}, zap.NewNop())
	_, ev := placedOrder(t)

	err := p.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// the first confirmation arrives late and must not satisfy the second publish
	ch.confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
	ch.confirms <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Equal(t, "orders/shop.orders.new", ch.keys[1])
}
