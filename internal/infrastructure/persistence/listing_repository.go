package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormListingRepository implements ListingRepository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

func (r *GormListingRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Product.Category").
		Preload("Shop")
}

// FindByID loads a listing with product, category, shop and parameters
func (r *GormListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.ProductListing, error) {
	var listing catalog.ProductListing
	if err := r.withDetails(ctx).
		Preload("Parameters.Parameter").
		First(&listing, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &listing, nil
}

// FindByIDs loads listings with product, category and shop
func (r *GormListingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.ProductListing, error) {
	var listings []catalog.ProductListing
	if len(ids) == 0 {
		return listings, nil
	}
	if err := r.withDetails(ctx).Where("id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// FindByIDForUpdate loads a listing and holds its row lock until the
// surrounding transaction ends. sqlite has no row locks and ignores the clause.
func (r *GormListingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*catalog.ProductListing, error) {
	var listing catalog.ProductListing
	if err := r.withDetails(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&listing, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &listing, nil
}

// FindByShop loads every listing of a shop with product and parameters,
// ordered by product model
func (r *GormListingRepository) FindByShop(ctx context.Context, shopID uuid.UUID) ([]catalog.ProductListing, error) {
	var listings []catalog.ProductListing
	if err := r.db.WithContext(ctx).
		Preload("Product.Category").
		Preload("Parameters.Parameter").
		Joins("JOIN products ON products.id = product_listings.product_id").
		Where("product_listings.shop_id = ?", shopID).
		Order("products.model ASC").
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *GormListingRepository) searchQuery(ctx context.Context, filter catalog.ListingFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&catalog.ProductListing{}).
		Joins("JOIN products ON products.id = product_listings.product_id")
	if filter.ActiveShopsOnly {
		query = query.
			Joins("JOIN shops ON shops.id = product_listings.shop_id").
			Where("shops.active = ?", true)
	}
	if filter.ShopID != nil {
		query = query.Where("product_listings.shop_id = ?", *filter.ShopID)
	}
	if filter.CategoryID != nil {
		query = query.Where("products.category_id = ?", *filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(products.name) LIKE ? OR LOWER(products.model) LIKE ?)", pattern, pattern)
	}
	return query
}

// Search lists listings matching the filter, returning the page and the total
func (r *GormListingRepository) Search(ctx context.Context, filter catalog.ListingFilter) ([]catalog.ProductListing, int64, error) {
	filter.Filter = filter.Filter.Normalize()

	var total int64
	if err := r.searchQuery(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listings []catalog.ProductListing
	if err := r.searchQuery(ctx, filter).
		Preload("Product.Category").
		Preload("Shop").
		Order("products.name ASC, product_listings.price ASC, product_listings.id ASC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// Create inserts a listing without touching its associations
func (r *GormListingRepository) Create(ctx context.Context, listing *catalog.ProductListing) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(listing).Error
}

// UpdateTerms persists price, recommended price, quantity and external id
func (r *GormListingRepository) UpdateTerms(ctx context.Context, listing *catalog.ProductListing) error {
	return r.db.WithContext(ctx).Model(&catalog.ProductListing{}).
		Where("id = ?", listing.ID).
		Updates(map[string]any{
			"external_id": listing.ExternalID,
			"price":       listing.Price,
			"price_rrc":   listing.PriceRRC,
			"quantity":    listing.Quantity,
			"updated_at":  time.Now(),
		}).Error
}

// UpsertParameters inserts or overwrites parameter values
func (r *GormListingRepository) UpsertParameters(ctx context.Context, params []catalog.ListingParameter) error {
	if len(params) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "listing_id"}, {Name: "parameter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&params).Error
}

// DeleteParameters removes parameter values from one listing
func (r *GormListingRepository) DeleteParameters(ctx context.Context, listingID uuid.UUID, parameterIDs []uuid.UUID) error {
	if len(parameterIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("listing_id = ? AND parameter_id IN ?", listingID, parameterIDs).
		Delete(&catalog.ListingParameter{}).Error
}

// DeleteByIDs removes listings together with their parameters
func (r *GormListingRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("listing_id IN ?", ids).
		Delete(&catalog.ListingParameter{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&catalog.ProductListing{}).Error
}

// DecrementQuantity subtracts qty only while at least qty units remain.
// The condition is evaluated by the database, so a concurrent decrement can
// never drive the quantity below zero.
func (r *GormListingRepository) DecrementQuantity(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&catalog.ProductListing{}).
		Where("id = ? AND quantity >= ?", id, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementQuantity adds qty back to a listing
func (r *GormListingRepository) IncrementQuantity(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&catalog.ProductListing{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

var _ catalog.ListingRepository = (*GormListingRepository)(nil)
