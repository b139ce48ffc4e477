// Package notify delivers order lifecycle events outside the process: to the
// log, to an HTTP webhook and to a RabbitMQ exchange. Each notifier is a
// shared.EventHandler subscribed to the async event dispatcher.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
)

// Message is the wire form of an order lifecycle notification
type Message struct {
	EventID    uuid.UUID   `json:"event_id"`
	EventType  string      `json:"event_type"`
	OrderID    uuid.UUID   `json:"order_id"`
	BuyerID    uuid.UUID   `json:"buyer_id"`
	OldStatus  string      `json:"old_status,omitempty"`
	NewStatus  string      `json:"new_status"`
	Total      string      `json:"total"`
	ShopIDs    []uuid.UUID `json:"shop_ids"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// messageFrom converts a lifecycle event; any other event is rejected
func messageFrom(e shared.DomainEvent) (Message, error) {
	ev, ok := e.(*trade.OrderStatusChangedEvent)
	if !ok {
		return Message{}, fmt.Errorf("unsupported event %s (%T)", e.EventType(), e)
	}
	return Message{
		EventID:    ev.EventID(),
		EventType:  ev.EventType(),
		OrderID:    ev.OrderID,
		BuyerID:    ev.BuyerID,
		OldStatus:  string(ev.OldStatus),
		NewStatus:  string(ev.NewStatus),
		Total:      ev.Total.StringFixed(2),
		ShopIDs:    ev.ShopIDs,
		OccurredAt: ev.OccurredAt().UTC(),
	}, nil
}

var lifecycleEvents = []string{trade.EventTypeOrderStatusChanged}
