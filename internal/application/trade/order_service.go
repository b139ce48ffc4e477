package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"github.com/procurement/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderMetrics records order lifecycle steps
type OrderMetrics interface {
	RecordOrderTransition(ctx context.Context, from, to string)
}

// OrderOption configures an OrderService
type OrderOption func(*OrderService)

// WithEventPublisher delivers lifecycle events to publisher after commit
func WithEventPublisher(publisher shared.EventPublisher) OrderOption {
	return func(s *OrderService) {
		s.publisher = publisher
	}
}

// WithOrderMetrics reports lifecycle steps to m
func WithOrderMetrics(m OrderMetrics) OrderOption {
	return func(s *OrderService) {
		s.metrics = m
	}
}

// OrderService turns baskets into orders and moves orders through their
// lifecycle. Stock changes happen under the locks of the affected shops, the
// same locks price list ingestion takes.
type OrderService struct {
	store     store.Store
	locker    shared.KeyedLocker
	cache     shared.CacheInvalidator
	publisher shared.EventPublisher
	metrics   OrderMetrics
	logger    *zap.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(s store.Store, locker shared.KeyedLocker, cache shared.CacheInvalidator, logger *zap.Logger, opts ...OrderOption) *OrderService {
	svc := &OrderService{
		store:  s,
		locker: locker,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// PlaceOrder converts the buyer's basket into a NEW order delivered to
// contactID. Either every line's stock is decremented and the basket emptied,
// or nothing changes.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID, contactID uuid.UUID) (*OrderView, error) {
	basket, err := s.store.Baskets().FindByBuyer(ctx, buyerID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("load basket: %w", err)
	}
	if basket == nil || basket.IsEmpty() {
		return nil, emptyBasket()
	}

	listings, err := s.store.Listings().FindByIDs(ctx, basket.ListingIDs())
	if err != nil {
		return nil, fmt.Errorf("load basket listings: %w", err)
	}
	if gone := vanishedListings(basket, listings); len(gone) > 0 {
		return nil, s.dropVanished(ctx, basket, gone)
	}
	locked := make(map[uuid.UUID]struct{}, len(listings))
	keys := make([]string, 0, len(listings))
	for _, l := range listings {
		if l.Shop == nil {
			continue
		}
		locked[l.ShopID] = struct{}{}
		keys = append(keys, catalog.ShopLockKey(l.Shop.PartnerID))
	}

	release, err := shared.AcquireAll(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	txCtx, span := telemetry.StartSpan(ctx, "order.place",
		attribute.String("buyer_id", buyerID.String()),
		attribute.Int("shops", len(locked)))
	var order *trade.Order
	err = s.store.Execute(txCtx, func(repos store.Repositories) error {
		var err error
		order, err = s.placeOrder(txCtx, repos, buyerID, contactID, locked)
		return err
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, basketChanged()
		}
		return nil, err
	}

	shopIDs := order.ShopIDs()
	s.cache.Invalidate(ctx, shared.ShopScope(shopIDs...))
	s.emit(ctx, order)

	s.logger.Info("Order placed",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", buyerID.String()),
		zap.Int("lines", order.ItemCount()),
		zap.Int("shops", len(shopIDs)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	view := ToOrderView(order)
	return &view, nil
}

func (s *OrderService) placeOrder(ctx context.Context, repos store.Repositories, buyerID, contactID uuid.UUID, locked map[uuid.UUID]struct{}) (*trade.Order, error) {
	basket, err := repos.Baskets().FindByBuyer(ctx, buyerID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, emptyBasket()
	}
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}
	if basket.IsEmpty() {
		return nil, emptyBasket()
	}

	contact, err := repos.Contacts().FindByID(ctx, contactID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	if contact == nil || contact.BuyerID != buyerID {
		return nil, shared.NewNotFoundError("contact", contactID)
	}

	lines := make([]trade.BasketLine, len(basket.Lines))
	copy(lines, basket.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ListingID.String() < lines[j].ListingID.String() })

	snapshots := make(map[uuid.UUID]trade.LineSnapshot, len(lines))
	for _, line := range lines {
		listing, err := repos.Listings().FindByIDForUpdate(ctx, line.ListingID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, basketChanged()
			}
			return nil, fmt.Errorf("load listing: %w", err)
		}
		if _, ok := locked[listing.ShopID]; !ok {
			return nil, basketChanged()
		}
		if listing.Shop != nil && !listing.Shop.Active {
			return nil, shared.NewValidationError("SHOP_INACTIVE",
				fmt.Sprintf("Shop %q is not accepting orders", listing.Shop.Name))
		}
		if !listing.CanSupply(line.Quantity) {
			return nil, &catalog.InsufficientStockError{
				ListingID: listing.ID,
				Requested: line.Quantity,
				Available: listing.Quantity,
			}
		}
		ok, err := repos.Listings().DecrementQuantity(ctx, listing.ID, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			return nil, shared.NewConflictError("STOCK_CHANGED", "Stock changed while placing the order")
		}
		snapshots[line.ListingID] = snapshot(listing, line.Quantity)
	}

	// the order keeps the basket's line order
	ordered := make([]trade.LineSnapshot, 0, len(basket.Lines))
	for _, line := range basket.Lines {
		ordered = append(ordered, snapshots[line.ListingID])
	}
	order, err := trade.NewOrder(buyerID, contact, ordered)
	if err != nil {
		return nil, err
	}
	if err := repos.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	basket.Clear()
	if err := repos.Baskets().Save(ctx, basket); err != nil {
		return nil, err
	}
	return order, nil
}

// Transition moves an order to target. Cancelling returns the ordered
// quantities to listings that still exist.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, target trade.OrderStatus, actor string) (*OrderView, error) {
	order, err := s.findOrder(ctx, s.store, orderID)
	if err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown order status %q", target))
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, &trade.InvalidTransitionError{OrderID: order.ID, From: order.Status, To: target}
	}

	restock := target == trade.OrderStatusCancelled
	if restock {
		release, err := s.lockShops(ctx, order.ShopIDs())
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var (
		from    trade.OrderStatus
		skipped []uuid.UUID
	)
	err = s.store.Execute(ctx, func(repos store.Repositories) error {
		var err error
		order, err = s.findOrder(ctx, repos, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if err := order.Transition(target); err != nil {
			return err
		}
		if err := repos.Orders().SaveWithLock(ctx, order); err != nil {
			return err
		}
		if restock {
			skipped, err = s.restock(ctx, repos, order)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, id := range skipped {
		s.logger.Warn("Listing removed since the order was placed, stock not restored",
			zap.String("order_id", order.ID.String()),
			zap.String("listing_id", id.String()))
	}
	if restock {
		s.cache.Invalidate(ctx, shared.ShopScope(order.ShopIDs()...))
	}
	s.emit(ctx, order)

	s.logger.Info("Order status changed",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor", actor),
	)
	view := ToOrderView(order)
	return &view, nil
}

func (s *OrderService) restock(ctx context.Context, repos store.Repositories, order *trade.Order) ([]uuid.UUID, error) {
	lines := make([]trade.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ListingID.String() < lines[j].ListingID.String() })

	var skipped []uuid.UUID
	for _, line := range lines {
		ok, err := repos.Listings().IncrementQuantity(ctx, line.ListingID, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("restore stock: %w", err)
		}
		if !ok {
			skipped = append(skipped, line.ListingID)
		}
	}
	return skipped, nil
}

// GetOrder returns one of the buyer's orders
func (s *OrderService) GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.findOrder(ctx, s.store, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, shared.NewNotFoundError("order", orderID)
	}
	view := ToOrderView(order)
	return &view, nil
}

// ListBuyerOrders returns the buyer's orders, newest first
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, q ListOrdersQuery) (shared.Paginated[OrderView], error) {
	filter, err := orderFilter(q)
	if err != nil {
		return shared.Paginated[OrderView]{}, err
	}
	orders, total, err := s.store.Orders().FindByBuyer(ctx, buyerID, filter)
	if err != nil {
		return shared.Paginated[OrderView]{}, fmt.Errorf("load orders: %w", err)
	}
	views := make([]OrderView, len(orders))
	for i := range orders {
		views[i] = ToOrderView(&orders[i])
	}
	return shared.NewPaginated(views, total, filter.Page, filter.PageSize), nil
}

// ListShopOrders returns orders containing lines of the partner's shop. Each
// order only shows the lines bought from that shop.
func (s *OrderService) ListShopOrders(ctx context.Context, partnerID uuid.UUID, q ListOrdersQuery) (shared.Paginated[OrderView], error) {
	filter, err := orderFilter(q)
	if err != nil {
		return shared.Paginated[OrderView]{}, err
	}
	shop, err := s.store.Shops().FindByPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Paginated[OrderView]{}, shared.NewNotFoundError("shop of partner", partnerID)
		}
		return shared.Paginated[OrderView]{}, fmt.Errorf("load shop: %w", err)
	}
	orders, total, err := s.store.Orders().FindByShop(ctx, shop.ID, filter)
	if err != nil {
		return shared.Paginated[OrderView]{}, fmt.Errorf("load orders: %w", err)
	}
	views := make([]OrderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i], &shop.ID)
	}
	return shared.NewPaginated(views, total, filter.Page, filter.PageSize), nil
}

func (s *OrderService) findOrder(ctx context.Context, repos store.Repositories, id uuid.UUID) (*trade.Order, error) {
	order, err := repos.Orders().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("order", id)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

func (s *OrderService) lockShops(ctx context.Context, shopIDs []uuid.UUID) (func(), error) {
	shops, err := s.store.Shops().FindByIDs(ctx, shopIDs)
	if err != nil {
		return nil, fmt.Errorf("load shops: %w", err)
	}
	keys := make([]string, len(shops))
	for i, shop := range shops {
		keys[i] = catalog.ShopLockKey(shop.PartnerID)
	}
	return shared.AcquireAll(ctx, s.locker, keys...)
}

// emit publishes the order's pending lifecycle events. Delivery failures are
// logged; the status change stands.
func (s *OrderService) emit(ctx context.Context, order *trade.Order) {
	for _, event := range order.PullEvents() {
		if e, ok := event.(*trade.OrderStatusChangedEvent); ok && s.metrics != nil {
			s.metrics.RecordOrderTransition(ctx, string(e.OldStatus), string(e.NewStatus))
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish order event",
				zap.String("order_id", order.ID.String()),
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
	}
}

func orderFilter(q ListOrdersQuery) (trade.OrderFilter, error) {
	filter := trade.OrderFilter{Filter: shared.Filter{Page: q.Page, PageSize: q.PageSize}.Normalize()}
	if q.Status != "" {
		status := trade.OrderStatus(q.Status)
		if !status.IsValid() {
			return filter, shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown order status %q", q.Status))
		}
		filter.Status = &status
	}
	return filter, nil
}

func snapshot(l *catalog.ProductListing, qty int) trade.LineSnapshot {
	s := trade.LineSnapshot{
		ListingID: l.ID,
		ShopID:    l.ShopID,
		Quantity:  qty,
		UnitPrice: l.Price,
	}
	if l.Product != nil {
		s.ProductName = l.Product.Name
		s.Model = l.Product.Model
		if l.Product.Category != nil {
			s.CategoryName = l.Product.Category.Name
		}
	}
	return s
}

// vanishedListings returns basket listings that no longer exist. A reconcile
// can remove a listing after AddLine checked it but before the line was saved.
func vanishedListings(basket *trade.Basket, found []catalog.ProductListing) []uuid.UUID {
	present := make(map[uuid.UUID]struct{}, len(found))
	for i := range found {
		present[found[i].ID] = struct{}{}
	}
	var gone []uuid.UUID
	for _, id := range basket.ListingIDs() {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}
	return gone
}

// dropVanished removes lines of vanished listings so the buyer can review the
// basket and order again
func (s *OrderService) dropVanished(ctx context.Context, basket *trade.Basket, gone []uuid.UUID) error {
	for _, id := range gone {
		if err := basket.RemoveLine(id); err != nil {
			return err
		}
	}
	err := s.store.Baskets().Save(ctx, basket)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		return basketChanged()
	}
	if err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	s.logger.Info("Dropped unavailable basket lines",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("buyer_id", basket.BuyerID.String()),
		zap.Int("lines", len(gone)))
	return shared.NewValidationError("LISTING_UNAVAILABLE",
		fmt.Sprintf("%d basket item(s) are no longer offered and were removed", len(gone)))
}

func emptyBasket() error {
	return shared.NewValidationError("EMPTY_BASKET", "Cannot place an order from an empty basket")
}

func basketChanged() error {
	return shared.NewConflictError("BASKET_CHANGED", "The basket changed while placing the order")
}
