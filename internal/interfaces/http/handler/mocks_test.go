package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/infrastructure/cache"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	return engine
}

type mockIngestion struct{ mock.Mock }

func (m *mockIngestion) IngestDocument(ctx context.Context, partnerID uuid.UUID, raw []byte, format string, source catalog.IngestionSource) (*catalogapp.IngestionRunView, error) {
	args := m.Called(ctx, partnerID, raw, format, source)
	run, _ := args.Get(0).(*catalogapp.IngestionRunView)
	return run, args.Error(1)
}

func (m *mockIngestion) IngestFromURL(ctx context.Context, partnerID uuid.UUID, rawURL string, source catalog.IngestionSource) (*catalogapp.IngestionRunView, error) {
	args := m.Called(ctx, partnerID, rawURL, source)
	run, _ := args.Get(0).(*catalogapp.IngestionRunView)
	return run, args.Error(1)
}

func (m *mockIngestion) ExportShopCatalog(ctx context.Context, partnerID uuid.UUID, format string) ([]byte, error) {
	args := m.Called(ctx, partnerID, format)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func (m *mockIngestion) ListRuns(ctx context.Context, partnerID uuid.UUID, limit int) ([]catalogapp.IngestionRunView, error) {
	args := m.Called(ctx, partnerID, limit)
	runs, _ := args.Get(0).([]catalogapp.IngestionRunView)
	return runs, args.Error(1)
}

type mockShopState struct{ mock.Mock }

func (m *mockShopState) GetState(ctx context.Context, partnerID uuid.UUID) (*catalogapp.ShopStateView, error) {
	args := m.Called(ctx, partnerID)
	v, _ := args.Get(0).(*catalogapp.ShopStateView)
	return v, args.Error(1)
}

func (m *mockShopState) SetActive(ctx context.Context, partnerID uuid.UUID, active bool) (*catalogapp.ShopStateView, error) {
	args := m.Called(ctx, partnerID, active)
	v, _ := args.Get(0).(*catalogapp.ShopStateView)
	return v, args.Error(1)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) PlaceOrder(ctx context.Context, buyerID, contactID uuid.UUID) (*tradeapp.OrderView, error) {
	args := m.Called(ctx, buyerID, contactID)
	v, _ := args.Get(0).(*tradeapp.OrderView)
	return v, args.Error(1)
}

func (m *mockOrders) Transition(ctx context.Context, orderID uuid.UUID, target trade.OrderStatus, actor string) (*tradeapp.OrderView, error) {
	args := m.Called(ctx, orderID, target, actor)
	v, _ := args.Get(0).(*tradeapp.OrderView)
	return v, args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*tradeapp.OrderView, error) {
	args := m.Called(ctx, buyerID, orderID)
	v, _ := args.Get(0).(*tradeapp.OrderView)
	return v, args.Error(1)
}

func (m *mockOrders) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, q tradeapp.ListOrdersQuery) (shared.Paginated[tradeapp.OrderView], error) {
	args := m.Called(ctx, buyerID, q)
	return args.Get(0).(shared.Paginated[tradeapp.OrderView]), args.Error(1)
}

func (m *mockOrders) ListShopOrders(ctx context.Context, partnerID uuid.UUID, q tradeapp.ListOrdersQuery) (shared.Paginated[tradeapp.OrderView], error) {
	args := m.Called(ctx, partnerID, q)
	return args.Get(0).(shared.Paginated[tradeapp.OrderView]), args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) ListShops(ctx context.Context) ([]catalogapp.ShopView, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]catalogapp.ShopView)
	return v, args.Error(1)
}

func (m *mockCatalog) ListCategories(ctx context.Context, shopID *uuid.UUID) ([]catalogapp.CategoryView, error) {
	args := m.Called(ctx, shopID)
	v, _ := args.Get(0).([]catalogapp.CategoryView)
	return v, args.Error(1)
}

func (m *mockCatalog) ListListings(ctx context.Context, q catalogapp.ListingQuery) (shared.Paginated[catalogapp.ListingView], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(shared.Paginated[catalogapp.ListingView]), args.Error(1)
}

func (m *mockCatalog) GetListing(ctx context.Context, id uuid.UUID) (*catalogapp.ListingView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*catalogapp.ListingView)
	return v, args.Error(1)
}

type mockBasket struct{ mock.Mock }

func (m *mockBasket) view(args mock.Arguments) (*tradeapp.BasketView, error) {
	v, _ := args.Get(0).(*tradeapp.BasketView)
	return v, args.Error(1)
}

func (m *mockBasket) CurrentLines(ctx context.Context, buyerID uuid.UUID) (*tradeapp.BasketView, error) {
	return m.view(m.Called(ctx, buyerID))
}

func (m *mockBasket) AddLine(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*tradeapp.BasketView, error) {
	return m.view(m.Called(ctx, buyerID, listingID, qty))
}

func (m *mockBasket) SetQuantity(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*tradeapp.BasketView, error) {
	return m.view(m.Called(ctx, buyerID, listingID, qty))
}

func (m *mockBasket) RemoveLine(ctx context.Context, buyerID, listingID uuid.UUID) (*tradeapp.BasketView, error) {
	return m.view(m.Called(ctx, buyerID, listingID))
}

func (m *mockBasket) Clear(ctx context.Context, buyerID uuid.UUID) (*tradeapp.BasketView, error) {
	return m.view(m.Called(ctx, buyerID))
}

type mockContacts struct{ mock.Mock }

func (m *mockContacts) Create(ctx context.Context, buyerID uuid.UUID, addr trade.DeliveryAddress) (*tradeapp.ContactView, error) {
	args := m.Called(ctx, buyerID, addr)
	v, _ := args.Get(0).(*tradeapp.ContactView)
	return v, args.Error(1)
}

func (m *mockContacts) List(ctx context.Context, buyerID uuid.UUID) ([]tradeapp.ContactView, error) {
	args := m.Called(ctx, buyerID)
	v, _ := args.Get(0).([]tradeapp.ContactView)
	return v, args.Error(1)
}

func (m *mockContacts) Delete(ctx context.Context, buyerID, id uuid.UUID) error {
	return m.Called(ctx, buyerID, id).Error(0)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) FlushAll(ctx context.Context, actor, reason string) int {
	return m.Called(ctx, actor, reason).Int(0)
}

func (m *mockCache) FlushShop(ctx context.Context, shopID uuid.UUID, actor, reason string) int {
	return m.Called(ctx, shopID, actor, reason).Int(0)
}

func (m *mockCache) FlushCategory(ctx context.Context, categoryID uuid.UUID, actor, reason string) int {
	return m.Called(ctx, categoryID, actor, reason).Int(0)
}

func (m *mockCache) Stats() cache.Stats {
	return m.Called().Get(0).(cache.Stats)
}

func (m *mockCache) Audit() []cache.AuditEntry {
	v, _ := m.Called().Get(0).([]cache.AuditEntry)
	return v
}
