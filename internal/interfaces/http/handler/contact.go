package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

// ContactBook manages a buyer's delivery contacts
type ContactBook interface {
	Create(ctx context.Context, buyerID uuid.UUID, addr trade.DeliveryAddress) (*tradeapp.ContactView, error)
	List(ctx context.Context, buyerID uuid.UUID) ([]tradeapp.ContactView, error)
	Delete(ctx context.Context, buyerID, id uuid.UUID) error
}

// ContactHandler serves delivery contacts
type ContactHandler struct {
	BaseHandler
	contacts ContactBook
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(contacts ContactBook) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// List returns the buyer's contacts
func (h *ContactHandler) List(c *gin.Context) {
	contacts, err := h.contacts.List(c.Request.Context(), middleware.BuyerID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contacts)
}

// Create saves a new delivery contact
func (h *ContactHandler) Create(c *gin.Context) {
	var req dto.ContactRequest
	if !h.bindJSON(c, &req) {
		return
	}
	contact, err := h.contacts.Create(c.Request.Context(), middleware.BuyerID(c), trade.DeliveryAddress{
		City:      req.City,
		Street:    req.Street,
		House:     req.House,
		Structure: req.Structure,
		Building:  req.Building,
		Apartment: req.Apartment,
		Phone:     req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, contact)
}

// Delete removes one of the buyer's contacts
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.contacts.Delete(c.Request.Context(), middleware.BuyerID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
