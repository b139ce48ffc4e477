package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
	"github.com/procurement/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrderHandler(t *testing.T) {
	orders := &mockOrders{}
	defer orders.AssertExpectations(t)
	h := NewOrderHandler(orders)
	engine := newEngine()
	engine.POST("/orders/:id/status", h.Transition)
	g := engine.Group("/orders", middleware.RequireBuyer())
	g.POST("", h.Place)
	g.GET("", h.List)
	g.GET("/:id", h.Get)

	buyer, contact, orderID := uuid.New(), uuid.New(), uuid.New()
	headers := map[string]string{middleware.HeaderBuyerID: buyer.String()}

	t.Run("place", func(t *testing.T) {
		orders.On("PlaceOrder", mock.Anything, buyer, contact).Return(&tradeapp.OrderView{ID: orderID, Status: "NEW"}, nil).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders", map[string]string{"contact_id": contact.String()}, headers)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, orderID, testutil.DecodeData[tradeapp.OrderView](t, w).ID)
	})

	t.Run("place with insufficient stock", func(t *testing.T) {
		orders.On("PlaceOrder", mock.Anything, buyer, contact).
			Return(nil, shared.NewValidationError("INSUFFICIENT_STOCK", "Only 1 of apple/iphone left")).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders", map[string]string{"contact_id": contact.String()}, headers)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("place while the shop is busy", func(t *testing.T) {
		orders.On("PlaceOrder", mock.Anything, buyer, contact).Return(nil, shared.NewResourceBusyError("shop")).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders", map[string]string{"contact_id": contact.String()}, headers)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("list and get", func(t *testing.T) {
		orders.On("ListBuyerOrders", mock.Anything, buyer, tradeapp.ListOrdersQuery{}).
			Return(shared.NewPaginated([]tradeapp.OrderView{{ID: orderID}}, 1, 1, 20), nil).Once()
		orders.On("GetOrder", mock.Anything, buyer, orderID).Return(&tradeapp.OrderView{ID: orderID}, nil).Once()

		assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodGet, "/orders", nil, headers).Code)
		assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodGet, "/orders/"+orderID.String(), nil, headers).Code)
	})

	t.Run("transition names the actor", func(t *testing.T) {
		orders.On("Transition", mock.Anything, orderID, trade.OrderStatusConfirmed, "ops@example.com").
			Return(&tradeapp.OrderView{ID: orderID, Status: "CONFIRMED"}, nil).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "CONFIRMED"}, map[string]string{middleware.HeaderActor: "ops@example.com"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CONFIRMED", testutil.DecodeData[tradeapp.OrderView](t, w).Status)
	})

	t.Run("transition out of a final status", func(t *testing.T) {
		orders.On("Transition", mock.Anything, orderID, trade.OrderStatusNew, "anonymous").
			Return(nil, &trade.InvalidTransitionError{OrderID: orderID, From: trade.OrderStatusDelivered, To: trade.OrderStatusNew}).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "NEW"}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		w := testutil.PerformRequest(engine, http.MethodPost, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "LOST"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
