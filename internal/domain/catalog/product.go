package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// Product is a physical product identified by its model string. The same
// product may be listed by several shops at different prices.
type Product struct {
	shared.BaseEntity
	Model      string    `gorm:"type:varchar(80);not null;uniqueIndex"`
	Name       string    `gorm:"type:varchar(200);not null"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index"`
	Category   *Category `gorm:"foreignKey:CategoryID"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product in the given category
func NewProduct(model, name string, categoryID uuid.UUID) (*Product, error) {
	model = strings.TrimSpace(model)
	name = strings.TrimSpace(name)
	if model == "" {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product model cannot be empty")
	}
	if name == "" {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product name cannot be empty")
	}
	if categoryID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PRODUCT", "Product must belong to a category")
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		Model:      model,
		Name:       name,
		CategoryID: categoryID,
	}, nil
}

// ProductChange describes what Apply modified.
type ProductChange struct {
	Renamed      bool
	Moved        bool
	FromCategory uuid.UUID
}

// Changed reports whether anything was modified
func (c ProductChange) Changed() bool {
	return c.Renamed || c.Moved
}

// Apply overwrites name and category from a price list. The document is the
// source of truth for category membership, so a product listed under a
// different category moves there.
func (p *Product) Apply(name string, categoryID uuid.UUID) ProductChange {
	var change ProductChange
	name = strings.TrimSpace(name)
	if name != "" && name != p.Name {
		p.Name = name
		change.Renamed = true
	}
	if categoryID != uuid.Nil && categoryID != p.CategoryID {
		change.Moved = true
		change.FromCategory = p.CategoryID
		p.CategoryID = categoryID
		p.Category = nil
	}
	if change.Changed() {
		p.Touch()
	}
	return change
}
