package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"gorm.io/gorm"
)

// GormIngestionRunRepository implements IngestionRunRepository using GORM
type GormIngestionRunRepository struct {
	db *gorm.DB
}

// NewGormIngestionRunRepository creates a new GormIngestionRunRepository
func NewGormIngestionRunRepository(db *gorm.DB) *GormIngestionRunRepository {
	return &GormIngestionRunRepository{db: db}
}

// Save inserts or replaces a run record
func (r *GormIngestionRunRepository) Save(ctx context.Context, run *catalog.IngestionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindByPartner returns a partner's most recent runs first
func (r *GormIngestionRunRepository) FindByPartner(ctx context.Context, partnerID uuid.UUID, limit int) ([]catalog.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []catalog.IngestionRun
	if err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

var _ catalog.IngestionRunRepository = (*GormIngestionRunRepository)(nil)
