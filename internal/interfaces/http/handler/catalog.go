package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/interfaces/http/dto"
)

// CatalogReader answers buyer catalog reads
type CatalogReader interface {
	ListShops(ctx context.Context) ([]catalogapp.ShopView, error)
	ListCategories(ctx context.Context, shopID *uuid.UUID) ([]catalogapp.CategoryView, error)
	ListListings(ctx context.Context, q catalogapp.ListingQuery) (shared.Paginated[catalogapp.ListingView], error)
	GetListing(ctx context.Context, id uuid.UUID) (*catalogapp.ListingView, error)
}

// CatalogHandler serves the public catalog
type CatalogHandler struct {
	BaseHandler
	query CatalogReader
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(query CatalogReader) *CatalogHandler {
	return &CatalogHandler{query: query}
}

// Shops lists shops accepting orders
func (h *CatalogHandler) Shops(c *gin.Context) {
	shops, err := h.query.ListShops(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, shops)
}

// Categories lists categories, optionally those a shop sells in
func (h *CatalogHandler) Categories(c *gin.Context) {
	var req dto.CategoryListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	categories, err := h.query.ListCategories(c.Request.Context(), optionalUUID(req.ShopID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, categories)
}

// Listings searches offers
func (h *CatalogHandler) Listings(c *gin.Context) {
	var req dto.ListingListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.query.ListListings(c.Request.Context(), catalogapp.ListingQuery{
		ShopID:     optionalUUID(req.ShopID),
		CategoryID: optionalUUID(req.CategoryID),
		Search:     req.Search,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// Listing returns one offer with its parameters
func (h *CatalogHandler) Listing(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	listing, err := h.query.GetListing(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, listing)
}
