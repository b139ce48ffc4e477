package trade

import (
	"context"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// BasketRepository defines the interface for basket persistence
type BasketRepository interface {
	// FindByBuyer returns shared.ErrNotFound when the buyer has no basket
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*Basket, error)
	// Save creates the basket or replaces its lines. Updates only succeed when
	// the stored version still equals basket.Version; the version is then
	// incremented.
	Save(ctx context.Context, basket *Basket) error
	// RemoveLinesForListings deletes basket lines that point at removed
	// listings and bumps the affected baskets' versions
	RemoveLinesForListings(ctx context.Context, listingIDs []uuid.UUID) (int64, error)
}

// ContactRepository defines the interface for contact persistence
type ContactRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Contact, error)
	Save(ctx context.Context, contact *Contact) error
	// Delete removes a buyer's contact, returning shared.ErrNotFound when the
	// buyer owns no such contact
	Delete(ctx context.Context, buyerID, id uuid.UUID) error
}

// OrderFilter selects orders for listing
type OrderFilter struct {
	shared.Filter
	Status *OrderStatus
}

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// FindByID loads the order with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByBuyer(ctx context.Context, buyerID uuid.UUID, filter OrderFilter) ([]Order, int64, error)
	// FindByShop returns orders with at least one line bought from shopID
	FindByShop(ctx context.Context, shopID uuid.UUID, filter OrderFilter) ([]Order, int64, error)
	Create(ctx context.Context, order *Order) error
	// SaveWithLock persists status fields if the stored version still equals
	// order.Version, then increments it
	SaveWithLock(ctx context.Context, order *Order) error
}
