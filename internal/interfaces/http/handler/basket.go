package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

// BasketManager edits a buyer's basket
type BasketManager interface {
	CurrentLines(ctx context.Context, buyerID uuid.UUID) (*tradeapp.BasketView, error)
	AddLine(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*tradeapp.BasketView, error)
	SetQuantity(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*tradeapp.BasketView, error)
	RemoveLine(ctx context.Context, buyerID, listingID uuid.UUID) (*tradeapp.BasketView, error)
	Clear(ctx context.Context, buyerID uuid.UUID) (*tradeapp.BasketView, error)
}

// BasketHandler serves the buyer's basket
type BasketHandler struct {
	BaseHandler
	baskets BasketManager
}

// NewBasketHandler creates a new BasketHandler
func NewBasketHandler(baskets BasketManager) *BasketHandler {
	return &BasketHandler{baskets: baskets}
}

// Get returns the basket with live prices
func (h *BasketHandler) Get(c *gin.Context) {
	h.respond(c)(h.baskets.CurrentLines(c.Request.Context(), middleware.BuyerID(c)))
}

// AddLine adds a quantity of a listing, merging with an existing line
func (h *BasketHandler) AddLine(c *gin.Context) {
	var req dto.AddBasketLineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.baskets.AddLine(c.Request.Context(), middleware.BuyerID(c), uuid.MustParse(req.ListingID), req.Quantity))
}

// SetQuantity replaces a line's quantity; zero removes the line
func (h *BasketHandler) SetQuantity(c *gin.Context) {
	listingID, ok := h.pathUUID(c, "listing_id")
	if !ok {
		return
	}
	var req dto.SetBasketQuantityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.baskets.SetQuantity(c.Request.Context(), middleware.BuyerID(c), listingID, *req.Quantity))
}

// RemoveLine drops a listing from the basket
func (h *BasketHandler) RemoveLine(c *gin.Context) {
	listingID, ok := h.pathUUID(c, "listing_id")
	if !ok {
		return
	}
	h.respond(c)(h.baskets.RemoveLine(c.Request.Context(), middleware.BuyerID(c), listingID))
}

// Clear empties the basket
func (h *BasketHandler) Clear(c *gin.Context) {
	h.respond(c)(h.baskets.Clear(c.Request.Context(), middleware.BuyerID(c)))
}

func (h *BasketHandler) respond(c *gin.Context) func(*tradeapp.BasketView, error) {
	return func(view *tradeapp.BasketView, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, view)
	}
}
