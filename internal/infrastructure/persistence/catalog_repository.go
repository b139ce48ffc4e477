package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCategoryRepository implements CategoryRepository using GORM
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// FindByExternalIDs finds categories by supplier-facing id
func (r *GormCategoryRepository) FindByExternalIDs(ctx context.Context, externalIDs []int64) ([]catalog.Category, error) {
	var categories []catalog.Category
	if len(externalIDs) == 0 {
		return categories, nil
	}
	if err := r.db.WithContext(ctx).
		Where("external_id IN ?", externalIDs).
		Order("external_id ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// FindByIDs finds categories by ID
func (r *GormCategoryRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Category, error) {
	var categories []catalog.Category
	if len(ids) == 0 {
		return categories, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// FindListed finds categories that have at least one listing
func (r *GormCategoryRepository) FindListed(ctx context.Context, shopID *uuid.UUID, activeOnly bool) ([]catalog.Category, error) {
	listed := r.db.WithContext(ctx).
		Table("product_listings").
		Select("products.category_id").
		Joins("JOIN products ON products.id = product_listings.product_id")
	if activeOnly {
		listed = listed.
			Joins("JOIN shops ON shops.id = product_listings.shop_id").
			Where("shops.active = ?", true)
	}
	if shopID != nil {
		listed = listed.Where("product_listings.shop_id = ?", *shopID)
	}

	var categories []catalog.Category
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", listed).
		Order("name ASC, external_id ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Insert creates the category unless the external id is taken
func (r *GormCategoryRepository) Insert(ctx context.Context, category *catalog.Category) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(category)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update persists the category name
func (r *GormCategoryRepository) Update(ctx context.Context, category *catalog.Category) error {
	return r.db.WithContext(ctx).Model(&catalog.Category{}).
		Where("id = ?", category.ID).
		Updates(map[string]any{"name": category.Name, "updated_at": time.Now()}).Error
}

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByModels finds products by model
func (r *GormProductRepository) FindByModels(ctx context.Context, models []string) ([]catalog.Product, error) {
	var products []catalog.Product
	if len(models) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).
		Where("model IN ?", models).
		Order("model ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Insert creates the product unless the model is taken
func (r *GormProductRepository) Insert(ctx context.Context, product *catalog.Product) (bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model"}},
			DoNothing: true,
		}).
		Create(product)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update persists name and category
func (r *GormProductRepository) Update(ctx context.Context, product *catalog.Product) error {
	return r.db.WithContext(ctx).Model(&catalog.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":        product.Name,
			"category_id": product.CategoryID,
			"updated_at":  time.Now(),
		}).Error
}

// GormParameterRepository implements ParameterRepository using GORM
type GormParameterRepository struct {
	db *gorm.DB
}

// NewGormParameterRepository creates a new GormParameterRepository
func NewGormParameterRepository(db *gorm.DB) *GormParameterRepository {
	return &GormParameterRepository{db: db}
}

// FindByNormalizedNames finds parameters by identity
func (r *GormParameterRepository) FindByNormalizedNames(ctx context.Context, names []string) ([]catalog.Parameter, error) {
	var params []catalog.Parameter
	if len(names) == 0 {
		return params, nil
	}
	if err := r.db.WithContext(ctx).
		Where("normalized_name IN ?", names).
		Find(&params).Error; err != nil {
		return nil, err
	}
	return params, nil
}

// Insert creates the parameter unless another writer already did
func (r *GormParameterRepository) Insert(ctx context.Context, parameter *catalog.Parameter) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized_name"}},
			DoNothing: true,
		}).
		Create(parameter)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

var (
	_ catalog.CategoryRepository  = (*GormCategoryRepository)(nil)
	_ catalog.ProductRepository   = (*GormProductRepository)(nil)
	_ catalog.ParameterRepository = (*GormParameterRepository)(nil)
)
