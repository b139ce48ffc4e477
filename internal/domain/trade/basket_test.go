package trade

import (
	"testing"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasket_AddLine(t *testing.T) {
	basket := NewBasket(uuid.New())
	phone, charger := uuid.New(), uuid.New()

	require.NoError(t, basket.AddLine(phone, 1))
	require.NoError(t, basket.AddLine(charger, 2))
	require.NoError(t, basket.AddLine(phone, 2))

	assert.Len(t, basket.Lines, 2, "duplicate listing lines are merged")
	assert.Equal(t, 3, basket.Quantity(phone))
	assert.Equal(t, []uuid.UUID{phone, charger}, basket.ListingIDs(), "insertion order is kept")
	assert.Equal(t, 5, basket.TotalQuantity())

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		err := basket.AddLine(phone, 0)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
		err = basket.AddLine(phone, -3)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
		assert.Equal(t, 3, basket.Quantity(phone))
	})

	t.Run("caps line quantity", func(t *testing.T) {
		err := basket.AddLine(phone, MaxLineQuantity)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})
}

func TestBasket_SetQuantity(t *testing.T) {
	basket := NewBasket(uuid.New())
	listing := uuid.New()
	require.NoError(t, basket.AddLine(listing, 4))

	require.NoError(t, basket.SetQuantity(listing, 2))
	assert.Equal(t, 2, basket.Quantity(listing))

	t.Run("zero removes the line", func(t *testing.T) {
		require.NoError(t, basket.SetQuantity(listing, 0))
		assert.True(t, basket.IsEmpty())
	})

	t.Run("unknown listing", func(t *testing.T) {
		err := basket.SetQuantity(uuid.New(), 1)
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})

	t.Run("negative quantity", func(t *testing.T) {
		err := basket.SetQuantity(listing, -1)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})
}

func TestBasket_RemoveLineAndClear(t *testing.T) {
	basket := NewBasket(uuid.New())
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, basket.AddLine(a, 1))
	require.NoError(t, basket.AddLine(b, 1))

	require.NoError(t, basket.RemoveLine(a))
	assert.Equal(t, []uuid.UUID{b}, basket.ListingIDs())
	assert.True(t, shared.IsKind(basket.RemoveLine(a), shared.KindNotFound))

	require.NoError(t, basket.AddLine(c, 1))
	assert.Greater(t, basket.Lines[1].Position, basket.Lines[0].Position)

	basket.Clear()
	assert.True(t, basket.IsEmpty())
}

func TestNewContact(t *testing.T) {
	_, err := NewContact(uuid.New(), DeliveryAddress{City: "Moscow", Street: " "})
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	c, err := NewContact(uuid.New(), DeliveryAddress{City: " Moscow ", Street: "Arbat", Phone: "1"})
	require.NoError(t, err)
	assert.Equal(t, "Moscow", c.Address().City)
}
