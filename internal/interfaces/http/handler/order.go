package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

// OrderLifecycle places orders and moves them through their statuses
type OrderLifecycle interface {
	PlaceOrder(ctx context.Context, buyerID, contactID uuid.UUID) (*tradeapp.OrderView, error)
	Transition(ctx context.Context, orderID uuid.UUID, target trade.OrderStatus, actor string) (*tradeapp.OrderView, error)
	GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*tradeapp.OrderView, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, q tradeapp.ListOrdersQuery) (shared.Paginated[tradeapp.OrderView], error)
}

// OrderHandler serves orders
type OrderHandler struct {
	BaseHandler
	orders OrderLifecycle
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderLifecycle) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Place turns the buyer's basket into an order
func (h *OrderHandler) Place(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.orders.PlaceOrder(c.Request.Context(), middleware.BuyerID(c), uuid.MustParse(req.ContactID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// List pages through the buyer's orders, newest first
func (h *OrderHandler) List(c *gin.Context) {
	var req dto.OrderListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.orders.ListBuyerOrders(c.Request.Context(), middleware.BuyerID(c), tradeapp.ListOrdersQuery{
		Page:     req.Page,
		PageSize: req.PageSize,
		Status:   req.Status,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// Get returns one of the buyer's orders
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.BuyerID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Transition moves an order to the requested status on behalf of the caller
func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.orders.Transition(c.Request.Context(), id, trade.OrderStatus(req.Status), middleware.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}
