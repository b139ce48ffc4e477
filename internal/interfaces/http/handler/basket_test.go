package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
	"github.com/procurement/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBasketHandler(t *testing.T) {
	baskets := &mockBasket{}
	defer baskets.AssertExpectations(t)
	h := NewBasketHandler(baskets)
	engine := newEngine()
	g := engine.Group("/basket", middleware.RequireBuyer())
	g.GET("", h.Get)
	g.DELETE("", h.Clear)
	g.POST("/lines", h.AddLine)
	g.PUT("/lines/:listing_id", h.SetQuantity)
	g.DELETE("/lines/:listing_id", h.RemoveLine)

	buyer, listing := uuid.New(), uuid.New()
	headers := map[string]string{middleware.HeaderBuyerID: buyer.String()}
	view := &tradeapp.BasketView{BuyerID: buyer, TotalQuantity: 2, Total: decimal.NewFromInt(200)}

	t.Run("add", func(t *testing.T) {
		baskets.On("AddLine", mock.Anything, buyer, listing, 2).Return(view, nil).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/basket/lines",
			map[string]any{"listing_id": listing.String(), "quantity": 2}, headers)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, testutil.DecodeData[tradeapp.BasketView](t, w).TotalQuantity)
	})

	t.Run("add rejects zero quantity", func(t *testing.T) {
		w := testutil.PerformRequest(engine, http.MethodPost, "/basket/lines",
			map[string]any{"listing_id": listing.String(), "quantity": 0}, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("add unknown listing", func(t *testing.T) {
		missing := uuid.New()
		baskets.On("AddLine", mock.Anything, buyer, missing, 1).Return(nil, shared.NewNotFoundError("listing", missing)).Once()
		w := testutil.PerformRequest(engine, http.MethodPost, "/basket/lines",
			map[string]any{"listing_id": missing.String(), "quantity": 1}, headers)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("set quantity to zero", func(t *testing.T) {
		baskets.On("SetQuantity", mock.Anything, buyer, listing, 0).Return(&tradeapp.BasketView{BuyerID: buyer}, nil).Once()
		w := testutil.PerformRequest(engine, http.MethodPut, "/basket/lines/"+listing.String(), map[string]int{"quantity": 0}, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		w = testutil.PerformRequest(engine, http.MethodPut, "/basket/lines/"+listing.String(), map[string]int{}, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remove and clear", func(t *testing.T) {
		baskets.On("RemoveLine", mock.Anything, buyer, listing).Return(view, nil).Once()
		baskets.On("Clear", mock.Anything, buyer).Return(&tradeapp.BasketView{BuyerID: buyer}, nil).Once()
		baskets.On("CurrentLines", mock.Anything, buyer).Return(view, nil).Once()

		assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodDelete, "/basket/lines/"+listing.String(), nil, headers).Code)
		assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodDelete, "/basket", nil, headers).Code)
		assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodGet, "/basket", nil, headers).Code)
	})

	t.Run("basket changed concurrently", func(t *testing.T) {
		baskets.On("CurrentLines", mock.Anything, buyer).Return(nil, shared.NewConflictError("BASKET_CHANGED", "Basket changed")).Once()
		w := testutil.PerformRequest(engine, http.MethodGet, "/basket", nil, headers)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
