package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// ShopView is a shop as buyers see it
type ShopView struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// ShopStateView is a partner's view of its own shop
type ShopStateView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	FeedURL   string    `json:"feed_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryView is a category in catalog reads
type CategoryView struct {
	ID         uuid.UUID `json:"id"`
	ExternalID int64     `json:"external_id"`
	Name       string    `json:"name"`
}

// ListingView is a product offer of one shop
type ListingView struct {
	ID           uuid.UUID         `json:"id"`
	ShopID       uuid.UUID         `json:"shop_id"`
	ShopName     string            `json:"shop_name"`
	ProductID    uuid.UUID         `json:"product_id"`
	Model        string            `json:"model"`
	Name         string            `json:"name"`
	CategoryID   uuid.UUID         `json:"category_id"`
	CategoryName string            `json:"category_name"`
	Price        decimal.Decimal   `json:"price"`
	PriceRRC     decimal.Decimal   `json:"price_rrc"`
	Quantity     int               `json:"quantity"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

// ListingQuery filters catalog listing reads
type ListingQuery struct {
	ShopID     *uuid.UUID
	CategoryID *uuid.UUID
	Search     string
	Page       int
	PageSize   int
}

// IngestionRunView summarizes one price list ingestion
type IngestionRunView struct {
	ID         uuid.UUID              `json:"id"`
	ShopID     *uuid.UUID             `json:"shop_id,omitempty"`
	Source     string                 `json:"source"`
	SourceURL  string                 `json:"source_url,omitempty"`
	Status     string                 `json:"status"`
	Stats      catalog.ReconcileStats `json:"stats"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

func toShopView(s *catalog.Shop) ShopView {
	return ShopView{ID: s.ID, Name: s.Name, Active: s.Active}
}

func toShopStateView(s *catalog.Shop) *ShopStateView {
	return &ShopStateView{
		ID:        s.ID,
		Name:      s.Name,
		Active:    s.Active,
		FeedURL:   s.FeedURL,
		UpdatedAt: s.UpdatedAt,
	}
}

func toCategoryView(c *catalog.Category) CategoryView {
	return CategoryView{ID: c.ID, ExternalID: c.ExternalID, Name: c.Name}
}

// ToListingView converts a listing loaded with product, category and shop
func ToListingView(l *catalog.ProductListing) ListingView {
	v := ListingView{
		ID:        l.ID,
		ShopID:    l.ShopID,
		ProductID: l.ProductID,
		Price:     l.Price,
		PriceRRC:  l.PriceRRC,
		Quantity:  l.Quantity,
	}
	if l.Shop != nil {
		v.ShopName = l.Shop.Name
	}
	if l.Product != nil {
		v.Model = l.Product.Model
		v.Name = l.Product.Name
		v.CategoryID = l.Product.CategoryID
		if l.Product.Category != nil {
			v.CategoryName = l.Product.Category.Name
		}
	}
	if len(l.Parameters) > 0 {
		v.Parameters = l.ParameterMap()
	}
	return v
}

func toIngestionRunView(r *catalog.IngestionRun) *IngestionRunView {
	return &IngestionRunView{
		ID:         r.ID,
		ShopID:     r.ShopID,
		Source:     string(r.Source),
		SourceURL:  r.SourceURL,
		Status:     string(r.Status),
		Stats:      r.Stats,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}
