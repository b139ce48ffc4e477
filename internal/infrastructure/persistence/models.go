package persistence

import (
	"errors"

	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"gorm.io/gorm"
)

// Models lists every persisted type in dependency order
func Models() []any {
	return []any{
		&catalog.Shop{},
		&catalog.Category{},
		&catalog.Product{},
		&catalog.Parameter{},
		&catalog.ProductListing{},
		&catalog.ListingParameter{},
		&catalog.IngestionRun{},
		&trade.Basket{},
		&trade.BasketLine{},
		&trade.Contact{},
		&trade.Order{},
		&trade.OrderLine{},
	}
}

// notFound maps GORM's missing-record error to the domain one
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}
