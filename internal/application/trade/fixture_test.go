package trade

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	appcatalog "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/infrastructure/lock"
	"github.com/procurement/backend/internal/infrastructure/persistence"
	"github.com/procurement/backend/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tradeFixture struct {
	store       *persistence.GormStore
	db          *gorm.DB
	locker      *lock.MemoryLocker
	invalidator *testutil.RecordingInvalidator
	publisher   *testutil.RecordingPublisher
	reconciler  *appcatalog.Reconciler
	baskets     *BasketService
	contacts    *ContactService
	orders      *OrderService
}

func newTradeFixture(t *testing.T) *tradeFixture {
	t.Helper()
	s, db := testutil.NewSQLiteStore(t)
	locker := lock.NewMemoryLocker(lock.WithTimeout(5 * time.Second))
	invalidator := &testutil.RecordingInvalidator{}
	publisher := &testutil.RecordingPublisher{}
	log := zap.NewNop()
	return &tradeFixture{
		store:       s,
		db:          db,
		locker:      locker,
		invalidator: invalidator,
		publisher:   publisher,
		reconciler:  appcatalog.NewReconciler(s, locker, log),
		baskets:     NewBasketService(s, log),
		contacts:    NewContactService(s.Contacts(), log),
		orders:      NewOrderService(s, locker, invalidator, log, WithEventPublisher(publisher)),
	}
}

// seedShop imports items for a new partner and returns the partner id and
// listing ids by model
func (f *tradeFixture) seedShop(t *testing.T, name string, items ...catalog.PriceListItem) (uuid.UUID, map[string]uuid.UUID) {
	t.Helper()
	partner := uuid.New()
	doc := testutil.PriceList(name, map[int64]string{224: "Phones"}, items...)
	result, err := f.reconciler.Reconcile(context.Background(), catalog.ShopIdentity{PartnerID: partner}, doc)
	require.NoError(t, err)

	listings, err := f.store.Listings().FindByShop(context.Background(), result.ShopID)
	require.NoError(t, err)
	ids := make(map[string]uuid.UUID, len(listings))
	for _, l := range listings {
		ids[l.Product.Model] = l.ID
	}
	return partner, ids
}

func (f *tradeFixture) contact(t *testing.T, buyer uuid.UUID) uuid.UUID {
	t.Helper()
	c, err := f.contacts.Create(context.Background(), buyer, trade.DeliveryAddress{
		City:   "Moscow",
		Street: "Tverskaya",
		House:  "1",
		Phone:  "+79990000000",
	})
	require.NoError(t, err)
	return c.ID
}

func (f *tradeFixture) quantity(t *testing.T, listingID uuid.UUID) int {
	t.Helper()
	l, err := f.store.Listings().FindByID(context.Background(), listingID)
	require.NoError(t, err)
	return l.Quantity
}

// place puts qty of listingID into a fresh buyer's basket and places the order
func (f *tradeFixture) place(t *testing.T, listingID uuid.UUID, qty int) *OrderView {
	t.Helper()
	ctx := context.Background()
	buyer := uuid.New()
	_, err := f.baskets.AddLine(ctx, buyer, listingID, qty)
	require.NoError(t, err)
	order, err := f.orders.PlaceOrder(ctx, buyer, f.contact(t, buyer))
	require.NoError(t, err)
	return order
}
