package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		message    string
		retryAfter string
	}{
		{
			name:    "validation",
			err:     shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive"),
			status:  http.StatusBadRequest,
			code:    "INVALID_QUANTITY",
			message: "Quantity must be positive",
		},
		{
			name:    "insufficient stock",
			err:     fmt.Errorf("place order: %w", shared.NewValidationError("INSUFFICIENT_STOCK", "Only 2 left")),
			status:  http.StatusUnprocessableEntity,
			code:    "INSUFFICIENT_STOCK",
			message: "Only 2 left",
		},
		{
			name:    "not found",
			err:     shared.NewNotFoundError("order", "42"),
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "order 42 not found",
		},
		{
			name:    "conflict",
			err:     shared.NewConflictError("STOCK_CHANGED", "Stock changed while placing the order"),
			status:  http.StatusConflict,
			code:    "STOCK_CHANGED",
			message: "Stock changed while placing the order, try again",
		},
		{
			name:       "busy",
			err:        shared.NewResourceBusyError("shop"),
			status:     http.StatusServiceUnavailable,
			code:       "RESOURCE_BUSY",
			message:    "shop is busy, try again later",
			retryAfter: "1",
		},
		{
			name:   "state",
			err:    &trade.InvalidTransitionError{OrderID: uuid.New(), From: trade.OrderStatusDelivered, To: trade.OrderStatusNew},
			status: http.StatusUnprocessableEntity,
			code:   "INVALID_TRANSITION",
		},
		{
			name:    "infrastructure",
			err:     errors.New("dial tcp: connection refused"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL_ERROR",
			message: "An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := newEngine()
			h := &BaseHandler{}
			engine.GET("/fail", func(c *gin.Context) { h.HandleError(c, tc.err) })

			w := testutil.PerformRequest(engine, http.MethodGet, "/fail", nil, nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))

			env := testutil.DecodeEnvelope(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.RequestID)
			if tc.message != "" {
				assert.Equal(t, tc.message, env.Error.Message)
			}
		})
	}
}

func TestHandleError_StateMessage(t *testing.T) {
	orderID := uuid.New()
	engine := newEngine()
	h := &BaseHandler{}
	engine.GET("/fail", func(c *gin.Context) {
		h.HandleError(c, &trade.InvalidTransitionError{OrderID: orderID, From: trade.OrderStatusCancelled, To: trade.OrderStatusConfirmed})
	})

	env := testutil.DecodeEnvelope(t, testutil.PerformRequest(engine, http.MethodGet, "/fail", nil, nil))
	assert.Equal(t, "This order cannot be modified: order "+orderID.String()+" is already CANCELLED (requested CONFIRMED)",
		env.Error.Message)
}

func TestPathUUID(t *testing.T) {
	engine := newEngine()
	h := &BaseHandler{}
	engine.GET("/orders/:id", func(c *gin.Context) {
		if _, ok := h.pathUUID(c, "id"); ok {
			c.Status(http.StatusOK)
		}
	})

	assert.Equal(t, http.StatusOK, testutil.PerformRequest(engine, http.MethodGet, "/orders/"+uuid.NewString(), nil, nil).Code)

	w := testutil.PerformRequest(engine, http.MethodGet, "/orders/latest", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := testutil.DecodeEnvelope(t, w)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "id", env.Error.Details[0].Field)
}
