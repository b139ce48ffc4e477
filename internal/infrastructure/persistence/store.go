package persistence

import (
	"context"

	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/trade"
	"gorm.io/gorm"
)

// GormStore exposes every repository on the root connection and opens
// transactions that hand out repositories bound to the transaction.
type GormStore struct {
	gormRepositories
}

// NewGormStore creates a new GormStore
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormRepositories{db: db}}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// Repositories passed to fn must be used instead of the store's own, which
// run outside the transaction.
func (s *GormStore) Execute(ctx context.Context, fn func(repos store.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepositories{db: tx})
	})
}

// gormRepositories provides access to all repositories over one connection
// or transaction.
type gormRepositories struct {
	db *gorm.DB
}

func (r *gormRepositories) Shops() catalog.ShopRepository {
	return NewGormShopRepository(r.db)
}

func (r *gormRepositories) Categories() catalog.CategoryRepository {
	return NewGormCategoryRepository(r.db)
}

func (r *gormRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.db)
}

func (r *gormRepositories) Parameters() catalog.ParameterRepository {
	return NewGormParameterRepository(r.db)
}

func (r *gormRepositories) Listings() catalog.ListingRepository {
	return NewGormListingRepository(r.db)
}

func (r *gormRepositories) IngestionRuns() catalog.IngestionRunRepository {
	return NewGormIngestionRunRepository(r.db)
}

func (r *gormRepositories) Baskets() trade.BasketRepository {
	return NewGormBasketRepository(r.db)
}

func (r *gormRepositories) Contacts() trade.ContactRepository {
	return NewGormContactRepository(r.db)
}

func (r *gormRepositories) Orders() trade.OrderRepository {
	return NewGormOrderRepository(r.db)
}

var (
	_ store.Store        = (*GormStore)(nil)
	_ store.Repositories = (*gormRepositories)(nil)
)
