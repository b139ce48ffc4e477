package trade

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusAssembled OrderStatus = "ASSEMBLED"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// AllOrderStatuses returns every status in lifecycle order
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusNew,
		OrderStatusConfirmed,
		OrderStatusAssembled,
		OrderStatusSent,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusAssembled,
		OrderStatusSent, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition to the target status is valid
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusNew:
		return target == OrderStatusConfirmed || target == OrderStatusCancelled
	case OrderStatusConfirmed:
		return target == OrderStatusAssembled || target == OrderStatusCancelled
	case OrderStatusAssembled:
		return target == OrderStatusSent
	case OrderStatusSent:
		return target == OrderStatusDelivered
	}
	return false
}

// DeliveryAddress is the contact snapshot an order is delivered to
type DeliveryAddress struct {
	City      string `gorm:"type:varchar(50)" json:"city"`
	Street    string `gorm:"type:varchar(100)" json:"street"`
	House     string `gorm:"type:varchar(15)" json:"house,omitempty"`
	Structure string `gorm:"type:varchar(15)" json:"structure,omitempty"`
	Building  string `gorm:"type:varchar(15)" json:"building,omitempty"`
	Apartment string `gorm:"type:varchar(15)" json:"apartment,omitempty"`
	Phone     string `gorm:"type:varchar(20)" json:"phone"`
}

// OrderLine is an immutable snapshot of one basket line at checkout.
// Product name, model and category name are frozen so later catalog edits
// never change how a placed order reads.
type OrderLine struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ListingID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ShopID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductName  string          `gorm:"type:varchar(200);not null"`
	Model        string          `gorm:"type:varchar(80);not null"`
	CategoryName string          `gorm:"type:varchar(100);not null"`
	Quantity     int             `gorm:"not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (OrderLine) TableName() string {
	return "order_lines"
}

// LineSnapshot is what the order engine reads from a listing at checkout
type LineSnapshot struct {
	ListingID    uuid.UUID
	ShopID       uuid.UUID
	ProductName  string
	Model        string
	CategoryName string
	Quantity     int
	UnitPrice    decimal.Decimal
}

// Order is created once per checkout. After creation only its status changes.
type Order struct {
	shared.BaseAggregateRoot
	BuyerID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ContactID   uuid.UUID       `gorm:"type:uuid;not null"`
	Delivery    DeliveryAddress `gorm:"embedded;embeddedPrefix:delivery_"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;index"`
	Total       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Lines       []OrderLine     `gorm:"foreignKey:OrderID"`
	ConfirmedAt *time.Time
	AssembledAt *time.Time
	SentAt      *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder snapshots the given lines into a NEW order
func NewOrder(buyerID uuid.UUID, contact *Contact, lines []LineSnapshot) (*Order, error) {
	if len(lines) == 0 {
		return nil, shared.NewValidationError("EMPTY_BASKET", "Cannot place an order from an empty basket")
	}
	if contact == nil {
		return nil, shared.NewValidationError("INVALID_CONTACT", "A delivery contact is required")
	}

	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		BuyerID:           buyerID,
		ContactID:         contact.ID,
		Delivery:          contact.Address(),
		Status:            OrderStatusNew,
		Lines:             make([]OrderLine, 0, len(lines)),
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, shared.NewValidationError("INVALID_QUANTITY",
				fmt.Sprintf("Quantity for listing %s must be positive", l.ListingID))
		}
		price := l.UnitPrice.Round(2)
		order.Lines = append(order.Lines, OrderLine{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ListingID:    l.ListingID,
			ShopID:       l.ShopID,
			ProductName:  l.ProductName,
			Model:        l.Model,
			CategoryName: l.CategoryName,
			Quantity:     l.Quantity,
			UnitPrice:    price,
			Subtotal:     price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	order.Total = order.ComputedTotal()

	order.Raise(NewOrderStatusChangedEvent(order, "", OrderStatusNew, order.CreatedAt))
	return order, nil
}

// ComputedTotal returns the sum of line subtotals
func (o *Order) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// Transition moves the order to target, recording the transition time and
// queueing a lifecycle event.
func (o *Order) Transition(target OrderStatus) error {
	if !target.IsValid() {
		return shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown order status %q", target))
	}
	if !o.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: target}
	}

	now := time.Now()
	old := o.Status
	o.Status = target
	switch target {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusAssembled:
		o.AssembledAt = &now
	case OrderStatusSent:
		o.SentAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}
	o.UpdatedAt = now

	o.Raise(NewOrderStatusChangedEvent(o, old, target, now))
	return nil
}

// TransitionedAt returns when the order entered status, or nil if it never did
func (o *Order) TransitionedAt(status OrderStatus) *time.Time {
	switch status {
	case OrderStatusNew:
		return &o.CreatedAt
	case OrderStatusConfirmed:
		return o.ConfirmedAt
	case OrderStatusAssembled:
		return o.AssembledAt
	case OrderStatusSent:
		return o.SentAt
	case OrderStatusDelivered:
		return o.DeliveredAt
	case OrderStatusCancelled:
		return o.CancelledAt
	}
	return nil
}

// ShopIDs returns the distinct shops the order's lines were bought from
func (o *Order) ShopIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Lines))
	ids := make([]uuid.UUID, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ShopID]; ok {
			continue
		}
		seen[l.ShopID] = struct{}{}
		ids = append(ids, l.ShopID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ItemCount returns the number of lines
func (o *Order) ItemCount() int {
	return len(o.Lines)
}

// InvalidTransitionError is returned for a status change that the lifecycle
// does not allow.
type InvalidTransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("order %s is already %s (requested %s)", e.OrderID, e.From, e.To)
	}
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Unwrap exposes the state kind to shared.KindOf
func (e *InvalidTransitionError) Unwrap() error {
	return shared.NewStateError("INVALID_TRANSITION", e.Error())
}
