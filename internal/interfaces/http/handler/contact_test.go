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
)

func TestContactHandler(t *testing.T) {
	contacts := &mockContacts{}
	defer contacts.AssertExpectations(t)
	h := NewContactHandler(contacts)
	engine := newEngine()
	g := engine.Group("/contacts", middleware.RequireBuyer())
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("/:id", h.Delete)

	buyer := uuid.New()
	headers := map[string]string{middleware.HeaderBuyerID: buyer.String()}
	addr := trade.DeliveryAddress{City: "Moscow", Street: "Arbat", House: "10", Phone: "+79990000000"}

	contacts.On("Create", mock.Anything, buyer, addr).Return(&tradeapp.ContactView{ID: uuid.New(), DeliveryAddress: addr}, nil).Once()
	w := testutil.PerformRequest(engine, http.MethodPost, "/contacts", addr, headers)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = testutil.PerformRequest(engine, http.MethodPost, "/contacts", map[string]string{"city": "Moscow"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	contacts.On("List", mock.Anything, buyer).Return([]tradeapp.ContactView{}, nil).Once()
	w = testutil.PerformRequest(engine, http.MethodGet, "/contacts", nil, headers)
	assert.JSONEq(t, "[]", string(testutil.DecodeEnvelope(t, w).Data))

	id := uuid.New()
	contacts.On("Delete", mock.Anything, buyer, id).Return(nil).Once()
	assert.Equal(t, http.StatusNoContent, testutil.PerformRequest(engine, http.MethodDelete, "/contacts/"+id.String(), nil, headers).Code)

	contacts.On("Delete", mock.Anything, buyer, id).Return(shared.NewNotFoundError("contact", id)).Once()
	assert.Equal(t, http.StatusNotFound, testutil.PerformRequest(engine, http.MethodDelete, "/contacts/"+id.String(), nil, headers).Code)
}
