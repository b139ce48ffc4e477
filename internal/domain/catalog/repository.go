package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// ShopRepository defines the interface for shop persistence
type ShopRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Shop, error)
	// FindByPartner returns shared.ErrNotFound when the partner has no shop yet
	FindByPartner(ctx context.Context, partnerID uuid.UUID) (*Shop, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Shop, error)
	FindAll(ctx context.Context, activeOnly bool) ([]Shop, error)
	// FindWithFeed returns active shops that publish their price list at a URL
	FindWithFeed(ctx context.Context) ([]Shop, error)
	// Insert creates the shop, returning false when the partner already owns one
	Insert(ctx context.Context, shop *Shop) (bool, error)
	Update(ctx context.Context, shop *Shop) error
}

// CategoryRepository defines the interface for category persistence
type CategoryRepository interface {
	FindByExternalIDs(ctx context.Context, externalIDs []int64) ([]Category, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Category, error)
	// FindListed returns categories that have at least one listing, optionally
	// restricted to one shop and to active shops
	FindListed(ctx context.Context, shopID *uuid.UUID, activeOnly bool) ([]Category, error)
	// Insert creates the category, returning false when the external id is taken
	Insert(ctx context.Context, category *Category) (bool, error)
	Update(ctx context.Context, category *Category) error
}

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	FindByModels(ctx context.Context, models []string) ([]Product, error)
	// Insert creates the product, returning false when the model is taken
	Insert(ctx context.Context, product *Product) (bool, error)
	Update(ctx context.Context, product *Product) error
}

// ParameterRepository defines the interface for parameter persistence
type ParameterRepository interface {
	FindByNormalizedNames(ctx context.Context, names []string) ([]Parameter, error)
	// Insert creates the parameter, returning false when the normalized name is taken
	Insert(ctx context.Context, parameter *Parameter) (bool, error)
}

// ListingFilter selects listings for catalog reads
type ListingFilter struct {
	shared.Filter
	ShopID          *uuid.UUID
	CategoryID      *uuid.UUID
	ActiveShopsOnly bool
}

// ListingRepository defines the interface for product listing persistence
type ListingRepository interface {
	// FindByID loads the listing with product, category, shop and parameters
	FindByID(ctx context.Context, id uuid.UUID) (*ProductListing, error)
	// FindByIDs loads listings with product, category and shop
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]ProductListing, error)
	// FindByIDForUpdate loads the listing with product, category and shop and
	// locks its row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ProductListing, error)
	// FindByShop loads every listing of a shop with product and parameters
	FindByShop(ctx context.Context, shopID uuid.UUID) ([]ProductListing, error)
	Search(ctx context.Context, filter ListingFilter) ([]ProductListing, int64, error)

	Create(ctx context.Context, listing *ProductListing) error
	// UpdateTerms persists price, recommended price, quantity and external id
	UpdateTerms(ctx context.Context, listing *ProductListing) error
	UpsertParameters(ctx context.Context, params []ListingParameter) error
	DeleteParameters(ctx context.Context, listingID uuid.UUID, parameterIDs []uuid.UUID) error
	// DeleteByIDs removes listings together with their parameters
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error

	// DecrementQuantity subtracts qty only if at least qty units remain.
	// It reports false when the condition did not hold.
	DecrementQuantity(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	// IncrementQuantity adds qty back, reporting false when the listing is gone
	IncrementQuantity(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

// IngestionRunRepository defines the interface for ingestion history persistence
type IngestionRunRepository interface {
	Save(ctx context.Context, run *IngestionRun) error
	FindByPartner(ctx context.Context, partnerID uuid.UUID, limit int) ([]IngestionRun, error)
}
