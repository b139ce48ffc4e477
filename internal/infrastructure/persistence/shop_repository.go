package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormShopRepository implements ShopRepository using GORM
type GormShopRepository struct {
	db *gorm.DB
}

// NewGormShopRepository creates a new GormShopRepository
func NewGormShopRepository(db *gorm.DB) *GormShopRepository {
	return &GormShopRepository{db: db}
}

// FindByID finds a shop by its ID
func (r *GormShopRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Shop, error) {
	var shop catalog.Shop
	if err := r.db.WithContext(ctx).First(&shop, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &shop, nil
}

// FindByPartner finds the shop owned by a partner
func (r *GormShopRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID) (*catalog.Shop, error) {
	var shop catalog.Shop
	if err := r.db.WithContext(ctx).First(&shop, "partner_id = ?", partnerID).Error; err != nil {
		return nil, notFound(err)
	}
	return &shop, nil
}

// FindByIDs finds shops by ID; unknown IDs are skipped
func (r *GormShopRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Shop, error) {
	var shops []catalog.Shop
	if len(ids) == 0 {
		return shops, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// FindAll lists shops ordered by name
func (r *GormShopRepository) FindAll(ctx context.Context, activeOnly bool) ([]catalog.Shop, error) {
	var shops []catalog.Shop
	query := r.db.WithContext(ctx).Order("name ASC, id ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// FindWithFeed lists active shops that have a feed URL
func (r *GormShopRepository) FindWithFeed(ctx context.Context) ([]catalog.Shop, error) {
	var shops []catalog.Shop
	if err := r.db.WithContext(ctx).
		Where("active = ? AND feed_url <> ''", true).
		Order("name ASC").
		Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// Insert creates the shop unless the partner already owns one
func (r *GormShopRepository) Insert(ctx context.Context, shop *catalog.Shop) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partner_id"}},
			DoNothing: true,
		}).
		Create(shop)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update persists name, feed URL, availability and version
func (r *GormShopRepository) Update(ctx context.Context, shop *catalog.Shop) error {
	result := r.db.WithContext(ctx).Model(&catalog.Shop{}).
		Where("id = ?", shop.ID).
		Updates(map[string]any{
			"name":       shop.Name,
			"feed_url":   shop.FeedURL,
			"active":     shop.Active,
			"version":    shop.Version,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound)
	}
	return nil
}

var _ catalog.ShopRepository = (*GormShopRepository)(nil)
