package catalog

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductListing is a product's availability at one shop. It is the unit
// baskets and orders reference. (product, shop) is unique.
type ProductListing struct {
	shared.BaseEntity
	ProductID  uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_listing_product_shop,priority:1"`
	ShopID     uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_listing_product_shop,priority:2;index"`
	ExternalID int64              `gorm:"not null"`
	Price      decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	PriceRRC   decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Quantity   int                `gorm:"not null"`
	Product    *Product           `gorm:"foreignKey:ProductID"`
	Shop       *Shop              `gorm:"foreignKey:ShopID"`
	Parameters []ListingParameter `gorm:"foreignKey:ListingID"`
}

// TableName returns the table name for GORM
func (ProductListing) TableName() string {
	return "product_listings"
}

// ListingTerms are the per-shop commercial fields a price list sets.
type ListingTerms struct {
	ExternalID int64
	Price      decimal.Decimal
	PriceRRC   decimal.Decimal
	Quantity   int
}

func (t ListingTerms) validate() error {
	if t.Price.IsNegative() || t.PriceRRC.IsNegative() {
		return shared.NewValidationError("INVALID_LISTING", "Listing prices cannot be negative")
	}
	if t.Quantity < 0 {
		return shared.NewValidationError("INVALID_LISTING", "Listing quantity cannot be negative")
	}
	return nil
}

// NewProductListing creates a listing of product at shop
func NewProductListing(productID, shopID uuid.UUID, terms ListingTerms) (*ProductListing, error) {
	if err := terms.validate(); err != nil {
		return nil, err
	}
	return &ProductListing{
		BaseEntity: shared.NewBaseEntity(),
		ProductID:  productID,
		ShopID:     shopID,
		ExternalID: terms.ExternalID,
		Price:      terms.Price.Round(2),
		PriceRRC:   terms.PriceRRC.Round(2),
		Quantity:   terms.Quantity,
	}, nil
}

// Apply overwrites price, recommended price and quantity. Ingestion always
// wins over earlier values. Reports whether anything changed.
func (l *ProductListing) Apply(terms ListingTerms) (bool, error) {
	if err := terms.validate(); err != nil {
		return false, err
	}
	price, rrc := terms.Price.Round(2), terms.PriceRRC.Round(2)
	if l.ExternalID == terms.ExternalID && l.Price.Equal(price) &&
		l.PriceRRC.Equal(rrc) && l.Quantity == terms.Quantity {
		return false, nil
	}
	l.ExternalID = terms.ExternalID
	l.Price = price
	l.PriceRRC = rrc
	l.Quantity = terms.Quantity
	l.Touch()
	return true, nil
}

// CanSupply reports whether qty units are available
func (l *ProductListing) CanSupply(qty int) bool {
	return qty > 0 && l.Quantity >= qty
}

// IsVisible reports whether buyers may see and order the listing
func (l *ProductListing) IsVisible() bool {
	return l.Shop == nil || l.Shop.Active
}

// ParameterMap returns display name → value for preloaded parameters
func (l *ProductListing) ParameterMap() map[string]string {
	out := make(map[string]string, len(l.Parameters))
	for _, p := range l.Parameters {
		name := p.ParameterID.String()
		if p.Parameter != nil {
			name = p.Parameter.Name
		}
		out[name] = p.Value
	}
	return out
}

// DiffParameters compares the stored parameter set with the desired one
// (parameter id → value). Desired values that are new or differ are returned
// as upserts; stored parameters absent from desired are returned as removals.
func (l *ProductListing) DiffParameters(desired map[uuid.UUID]string) (upserts []ListingParameter, removals []uuid.UUID) {
	current := make(map[uuid.UUID]string, len(l.Parameters))
	for _, p := range l.Parameters {
		current[p.ParameterID] = p.Value
	}
	for id, value := range desired {
		if old, ok := current[id]; ok && old == value {
			continue
		}
		upserts = append(upserts, ListingParameter{ListingID: l.ID, ParameterID: id, Value: value})
	}
	for id := range current {
		if _, ok := desired[id]; !ok {
			removals = append(removals, id)
		}
	}
	return upserts, removals
}

// ListingParameter is one (parameter, value) pair of a listing
type ListingParameter struct {
	ListingID   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ParameterID uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Value       string     `gorm:"type:varchar(200);not null"`
	Parameter   *Parameter `gorm:"foreignKey:ParameterID"`
}

// TableName returns the table name for GORM
func (ListingParameter) TableName() string {
	return "listing_parameters"
}

// InsufficientStockError reports that a listing cannot supply the requested quantity.
type InsufficientStockError struct {
	ListingID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for listing %s: requested %d, available %d",
		e.ListingID, e.Requested, e.Available)
}

// Unwrap exposes the validation kind to shared.KindOf
func (e *InsufficientStockError) Unwrap() error {
	return shared.NewValidationError("INSUFFICIENT_STOCK", e.Error())
}
