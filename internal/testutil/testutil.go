// Package testutil holds test fixtures: an in-memory store, price list
// builders, event recorders and HTTP helpers.
package testutil

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewSQLiteStore opens a private in-memory sqlite database with every table
// created and returns a store over it
func NewSQLiteStore(t *testing.T) (*persistence.GormStore, *gorm.DB) {
	t.Helper()

	db, err := persistence.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err, "Failed to open sqlite database")
	require.NoError(t, db.AutoMigrate(), "Failed to create tables")
	t.Cleanup(func() { _ = db.Close() })
	return persistence.NewGormStore(db.DB), db.DB
}

// Item builds a price list item
func Item(id, category int64, model, name string, price int64, qty int, params map[string]string) catalog.PriceListItem {
	p := decimal.NewFromInt(price)
	rrc := p.Add(p.Div(decimal.NewFromInt(10))).Round(2)
	return catalog.PriceListItem{
		ID:         id,
		Category:   category,
		Model:      model,
		Name:       name,
		Price:      &p,
		PriceRRC:   &rrc,
		Quantity:   &qty,
		Parameters: params,
	}
}

// PriceList builds a price list for shop declaring the given categories
// (external id → name)
func PriceList(shop string, categories map[int64]string, goods ...catalog.PriceListItem) *catalog.PriceList {
	doc := &catalog.PriceList{
		Shop:       shop,
		Categories: make([]catalog.PriceListCategory, 0, len(categories)),
		Goods:      append([]catalog.PriceListItem{}, goods...),
	}
	for id, name := range categories {
		doc.Categories = append(doc.Categories, catalog.PriceListCategory{ID: id, Name: name})
	}
	return doc
}

// SampleYAML renders a one-item price list document
func SampleYAML(shop string, model string, qty int) []byte {
	return []byte(fmt.Sprintf(`shop: %s
categories:
  - id: 224
    name: Phones
goods:
  - id: 1
    category: 224
    model: %s
    name: Phone %s
    price: 100
    price_rrc: 110
    quantity: %d
    parameters:
      Color: black
`, shop, model, model, qty))
}
