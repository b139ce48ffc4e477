package trade

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// MaxLineQuantity caps the quantity of a single basket line
const MaxLineQuantity = 100000

// BasketLine is a desired (listing, quantity) pair
type BasketLine struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BasketID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_basket_line_listing,priority:1"`
	ListingID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_basket_line_listing,priority:2;index"`
	Quantity  int       `gorm:"not null"`
	Position  int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BasketLine) TableName() string {
	return "basket_lines"
}

// Basket is a buyer's single open basket. Lines keep insertion order and
// hold at most one line per listing.
type Basket struct {
	shared.BaseAggregateRoot
	BuyerID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	Lines   []BasketLine `gorm:"foreignKey:BasketID"`
}

// TableName returns the table name for GORM
func (Basket) TableName() string {
	return "baskets"
}

// NewBasket creates an empty basket for buyer
func NewBasket(buyerID uuid.UUID) *Basket {
	return &Basket{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		BuyerID:           buyerID,
		Lines:             make([]BasketLine, 0),
	}
}

// AddLine adds qty units of a listing, merging into an existing line
func (b *Basket) AddLine(listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if line := b.line(listingID); line != nil {
		if line.Quantity+qty > MaxLineQuantity {
			return quantityTooLarge()
		}
		line.Quantity += qty
		b.Touch()
		return nil
	}
	if qty > MaxLineQuantity {
		return quantityTooLarge()
	}
	b.Lines = append(b.Lines, BasketLine{
		ID:        uuid.New(),
		BasketID:  b.ID,
		ListingID: listingID,
		Quantity:  qty,
		Position:  b.nextPosition(),
	})
	b.Touch()
	return nil
}

// SetQuantity replaces the quantity of a line. Zero removes the line.
func (b *Basket) SetQuantity(listingID uuid.UUID, qty int) error {
	if qty < 0 {
		return shared.NewValidationError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	if qty == 0 {
		return b.RemoveLine(listingID)
	}
	if qty > MaxLineQuantity {
		return quantityTooLarge()
	}
	line := b.line(listingID)
	if line == nil {
		return shared.NewNotFoundError("basket line for listing", listingID)
	}
	line.Quantity = qty
	b.Touch()
	return nil
}

// RemoveLine drops the line for a listing
func (b *Basket) RemoveLine(listingID uuid.UUID) error {
	for i := range b.Lines {
		if b.Lines[i].ListingID == listingID {
			b.Lines = append(b.Lines[:i], b.Lines[i+1:]...)
			b.Touch()
			return nil
		}
	}
	return shared.NewNotFoundError("basket line for listing", listingID)
}

// Clear removes every line
func (b *Basket) Clear() {
	b.Lines = b.Lines[:0]
	b.Touch()
}

// IsEmpty reports whether the basket has no lines
func (b *Basket) IsEmpty() bool {
	return len(b.Lines) == 0
}

// Quantity returns the quantity requested for a listing, 0 when absent
func (b *Basket) Quantity(listingID uuid.UUID) int {
	if line := b.line(listingID); line != nil {
		return line.Quantity
	}
	return 0
}

// ListingIDs returns the listings in line order
func (b *Basket) ListingIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.Lines))
	for i, l := range b.Lines {
		ids[i] = l.ListingID
	}
	return ids
}

// TotalQuantity returns the sum of all line quantities
func (b *Basket) TotalQuantity() int {
	total := 0
	for _, l := range b.Lines {
		total += l.Quantity
	}
	return total
}

func (b *Basket) line(listingID uuid.UUID) *BasketLine {
	for i := range b.Lines {
		if b.Lines[i].ListingID == listingID {
			return &b.Lines[i]
		}
	}
	return nil
}

func (b *Basket) nextPosition() int {
	next := 0
	for _, l := range b.Lines {
		if l.Position >= next {
			next = l.Position + 1
		}
	}
	return next
}

func quantityTooLarge() error {
	return shared.NewValidationError("INVALID_QUANTITY",
		fmt.Sprintf("Quantity cannot exceed %d", MaxLineQuantity))
}
