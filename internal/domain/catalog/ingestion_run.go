package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// IngestionSource describes how a price list reached the system
type IngestionSource string

const (
	IngestionSourceUpload   IngestionSource = "upload"
	IngestionSourceURL      IngestionSource = "url"
	IngestionSourceFile     IngestionSource = "file"
	IngestionSourceSchedule IngestionSource = "schedule"
)

// IngestionStatus is the outcome of an ingestion run
type IngestionStatus string

const (
	IngestionStatusSucceeded IngestionStatus = "SUCCEEDED"
	IngestionStatusFailed    IngestionStatus = "FAILED"
)

// ReconcileStats counts what a reconcile run changed
type ReconcileStats struct {
	CategoriesCreated int `json:"categories_created"`
	CategoriesUpdated int `json:"categories_updated"`
	ProductsCreated   int `json:"products_created"`
	ProductsUpdated   int `json:"products_updated"`
	ListingsCreated   int `json:"listings_created"`
	ListingsUpdated   int `json:"listings_updated"`
	ListingsRemoved   int `json:"listings_removed"`
	ParametersCreated int `json:"parameters_created"`
}

// IngestionRun is the history record of one price list ingestion
type IngestionRun struct {
	shared.BaseEntity
	PartnerID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	ShopID     *uuid.UUID      `gorm:"type:uuid;index"`
	Source     IngestionSource `gorm:"type:varchar(20);not null"`
	SourceURL  string          `gorm:"type:varchar(500)"`
	Status     IngestionStatus `gorm:"type:varchar(20);not null"`
	Stats      ReconcileStats  `gorm:"embedded;embeddedPrefix:stat_"`
	Error      string          `gorm:"type:text"`
	StartedAt  time.Time       `gorm:"not null"`
	FinishedAt *time.Time
}

// TableName returns the table name for GORM
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}

// StartIngestionRun opens a run record for partner
func StartIngestionRun(partnerID uuid.UUID, source IngestionSource, sourceURL string) *IngestionRun {
	base := shared.NewBaseEntity()
	return &IngestionRun{
		BaseEntity: base,
		PartnerID:  partnerID,
		Source:     source,
		SourceURL:  sourceURL,
		StartedAt:  base.CreatedAt,
	}
}

// Succeed closes the run as successful
func (r *IngestionRun) Succeed(shopID uuid.UUID, stats ReconcileStats) {
	now := time.Now()
	r.ShopID = &shopID
	r.Status = IngestionStatusSucceeded
	r.Stats = stats
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// Fail closes the run as failed
func (r *IngestionRun) Fail(err error) {
	now := time.Now()
	r.Status = IngestionStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// Duration returns how long the run took, or zero while it is open
func (r *IngestionRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
