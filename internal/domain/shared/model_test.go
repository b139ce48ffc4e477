package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFilterNormalize(t *testing.T) {
	assert.Equal(t, Filter{Page: 1, PageSize: 20}, Filter{}.Normalize())
	assert.Equal(t, Filter{Page: 1, PageSize: 200}, Filter{Page: -3, PageSize: 5000}.Normalize())

	f := Filter{Page: 3, PageSize: 25, Search: "x"}.Normalize()
	assert.Equal(t, "x", f.Search)
	assert.Equal(t, 50, f.Offset())
}

func TestNewPaginated(t *testing.T) {
	assert.Equal(t, 3, NewPaginated([]int{1}, 41, 1, 20).TotalPages)
	assert.Equal(t, 2, NewPaginated([]int{1}, 40, 1, 20).TotalPages)
	assert.Zero(t, NewPaginated[int](nil, 0, 1, 20).TotalPages)
	assert.Zero(t, NewPaginated[int](nil, 10, 1, 0).TotalPages)
}

func TestAggregateEvents(t *testing.T) {
	agg := NewBaseAggregateRoot()
	assert.Equal(t, 1, agg.Version)

	e := NewBaseDomainEvent("Thing", "Aggregate", agg.ID)
	agg.Raise(&e)
	assert.Len(t, agg.PendingEvents(), 1)

	pulled := agg.PullEvents()
	if assert.Len(t, pulled, 1) {
		assert.Equal(t, "Thing", pulled[0].EventType())
		assert.Equal(t, agg.ID, pulled[0].AggregateID())
		assert.NotEqual(t, uuid.Nil, pulled[0].EventID())
	}
	assert.Empty(t, agg.PendingEvents())
}
