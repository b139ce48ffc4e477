package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"gorm.io/gorm"
)

// GormContactRepository implements ContactRepository using GORM
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// FindByID finds a contact by its ID
func (r *GormContactRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.Contact, error) {
	var contact trade.Contact
	if err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

// FindByBuyer lists a buyer's contacts, oldest first
func (r *GormContactRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]trade.Contact, error) {
	var contacts []trade.Contact
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// Save creates or updates a contact
func (r *GormContactRepository) Save(ctx context.Context, contact *trade.Contact) error {
	return r.db.WithContext(ctx).Save(contact).Error
}

// Delete removes a contact owned by buyerID
func (r *GormContactRepository) Delete(ctx context.Context, buyerID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND buyer_id = ?", id, buyerID).
		Delete(&trade.Contact{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ trade.ContactRepository = (*GormContactRepository)(nil)
