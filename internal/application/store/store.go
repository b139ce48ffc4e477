package store

import (
	"context"

	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/trade"
)

// Repositories provides access to every repository. When obtained from a
// TransactionScope, all of them share the same underlying database transaction.
type Repositories interface {
	Shops() catalog.ShopRepository
	Categories() catalog.CategoryRepository
	Products() catalog.ProductRepository
	Parameters() catalog.ParameterRepository
	Listings() catalog.ListingRepository
	IngestionRuns() catalog.IngestionRunRepository
	Baskets() trade.BasketRepository
	Contacts() trade.ContactRepository
	Orders() trade.OrderRepository
}

// TransactionScope runs a unit of work atomically.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Store is the non-transactional repositories plus a way to open a transaction
type Store interface {
	Repositories
	TransactionScope
}
