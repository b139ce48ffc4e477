package persistence

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory sqlite database with every table created
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// newMockDB opens a postgres-dialect GORM connection backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

var nextExternalID atomic.Int64

type seededListing struct {
	Shop     *catalog.Shop
	Category *catalog.Category
	Product  *catalog.Product
	Listing  *catalog.ProductListing
}

// seedListing creates a shop (one per call), a category and a product, and lists the
// product at the shop with the given quantity
func seedListing(t *testing.T, db *gorm.DB, model string, qty int) seededListing {
	t.Helper()
	ctx := context.Background()

	shop, err := catalog.NewShop(catalog.ShopIdentity{PartnerID: uuid.New(), Name: "Shop " + model})
	require.NoError(t, err)
	_, err = NewGormShopRepository(db).Insert(ctx, shop)
	require.NoError(t, err)

	category, err := catalog.NewCategory(nextExternalID.Add(1), "Category "+model)
	require.NoError(t, err)
	_, err = NewGormCategoryRepository(db).Insert(ctx, category)
	require.NoError(t, err)

	product, err := catalog.NewProduct(model, "Product "+model, category.ID)
	require.NoError(t, err)
	_, err = NewGormProductRepository(db).Insert(ctx, product)
	require.NoError(t, err)

	listing, err := catalog.NewProductListing(product.ID, shop.ID, catalog.ListingTerms{
		ExternalID: 1,
		Price:      decimal.NewFromInt(100),
		PriceRRC:   decimal.NewFromInt(120),
		Quantity:   qty,
	})
	require.NoError(t, err)
	require.NoError(t, NewGormListingRepository(db).Create(ctx, listing))

	return seededListing{Shop: shop, Category: category, Product: product, Listing: listing}
}
