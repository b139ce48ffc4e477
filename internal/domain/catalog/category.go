package catalog

import (
	"strings"
	"unicode/utf8"

	"github.com/procurement/backend/internal/domain/shared"
)

// Category groups products. Categories are shared by all shops and keyed by the
// numeric id partners use in their price lists.
type Category struct {
	shared.BaseEntity
	ExternalID int64  `gorm:"not null;uniqueIndex"`
	Name       string `gorm:"type:varchar(100);not null"`
}

// TableName returns the table name for GORM
func (Category) TableName() string {
	return "categories"
}

// NewCategory creates a new category
func NewCategory(externalID int64, name string) (*Category, error) {
	if externalID <= 0 {
		return nil, shared.NewValidationError("INVALID_CATEGORY", "Category id must be positive")
	}
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}
	return &Category{
		BaseEntity: shared.NewBaseEntity(),
		ExternalID: externalID,
		Name:       strings.TrimSpace(name),
	}, nil
}

// Rename corrects the category name. Reports whether it changed.
func (c *Category) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if validateCategoryName(name) != nil || name == c.Name {
		return false
	}
	c.Name = name
	c.Touch()
	return true
}

func validateCategoryName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewValidationError("INVALID_CATEGORY", "Category name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 100 {
		return shared.NewValidationError("INVALID_CATEGORY", "Category name cannot exceed 100 characters")
	}
	return nil
}
