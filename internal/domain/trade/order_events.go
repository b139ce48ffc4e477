package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeOrder = "Order"

// EventTypeOrderStatusChanged is emitted once per successful lifecycle step,
// including placement (OldStatus empty, NewStatus NEW).
const EventTypeOrderStatusChanged = "OrderStatusChanged"

// OrderStatusChangedEvent is the lifecycle event delivered to notifiers
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID       `json:"order_id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	OldStatus OrderStatus     `json:"old_status"`
	NewStatus OrderStatus     `json:"new_status"`
	Total     decimal.Decimal `json:"total"`
	ShopIDs   []uuid.UUID     `json:"shop_ids"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(order *Order, old, current OrderStatus, at time.Time) *OrderStatusChangedEvent {
	base := shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, order.ID)
	base.Timestamp = at
	return &OrderStatusChangedEvent{
		BaseDomainEvent: base,
		OrderID:         order.ID,
		BuyerID:         order.BuyerID,
		OldStatus:       old,
		NewStatus:       current,
		Total:           order.Total,
		ShopIDs:         order.ShopIDs(),
	}
}

// IsPlacement reports whether the event marks the creation of the order
func (e *OrderStatusChangedEvent) IsPlacement() bool {
	return e.OldStatus == ""
}
