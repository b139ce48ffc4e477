package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBasketRepository implements BasketRepository using GORM
type GormBasketRepository struct {
	db *gorm.DB
}

// NewGormBasketRepository creates a new GormBasketRepository
func NewGormBasketRepository(db *gorm.DB) *GormBasketRepository {
	return &GormBasketRepository{db: db}
}

// FindByBuyer loads the buyer's basket with lines in insertion order
func (r *GormBasketRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*trade.Basket, error) {
	var basket trade.Basket
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&basket, "buyer_id = ?", buyerID).Error; err != nil {
		return nil, notFound(err)
	}
	return &basket, nil
}

// Save creates the basket or, if the stored version still matches, bumps the
// version and replaces its lines.
func (r *GormBasketRepository) Save(ctx context.Context, basket *trade.Basket) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&trade.Basket{}).
			Where("id = ? AND version = ?", basket.ID, basket.Version).
			Updates(map[string]any{
				"version":    basket.Version + 1,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&trade.Basket{}).Where("id = ?", basket.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return shared.ErrConcurrencyConflict
			}
			created := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "buyer_id"}},
					DoNothing: true,
				}).
				Create(basket)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 0 {
				// another request created the buyer's basket first
				return shared.ErrConcurrencyConflict
			}
		} else {
			basket.Version++
			basket.UpdatedAt = now
		}

		if err := tx.Where("basket_id = ?", basket.ID).Delete(&trade.BasketLine{}).Error; err != nil {
			return err
		}
		if len(basket.Lines) == 0 {
			return nil
		}
		for i := range basket.Lines {
			basket.Lines[i].BasketID = basket.ID
		}
		return tx.Create(&basket.Lines).Error
	})
}

// RemoveLinesForListings deletes lines pointing at listingIDs and bumps the
// version of every basket that lost a line
func (r *GormBasketRepository) RemoveLinesForListings(ctx context.Context, listingIDs []uuid.UUID) (int64, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}
	var basketIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&trade.BasketLine{}).
		Where("listing_id IN ?", listingIDs).
		Distinct("basket_id").
		Pluck("basket_id", &basketIDs).Error; err != nil {
		return 0, err
	}
	if len(basketIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("listing_id IN ?", listingIDs).
		Delete(&trade.BasketLine{})
	if result.Error != nil {
		return 0, result.Error
	}
	if err := r.db.WithContext(ctx).Model(&trade.Basket{}).
		Where("id IN ?", basketIDs).
		Updates(map[string]any{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}).Error; err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

var _ trade.BasketRepository = (*GormBasketRepository)(nil)
