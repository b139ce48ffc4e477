package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"gorm.io/gorm"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Order("product_name ASC, id ASC")
}

// FindByID loads an order with its lines
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.Order, error) {
	var order trade.Order
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// FindByBuyer lists a buyer's orders, newest first
func (r *GormOrderRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID, filter trade.OrderFilter) ([]trade.Order, int64, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("buyer_id = ?", buyerID)
	}, filter)
}

// FindByShop lists orders with at least one line from shopID, newest first
func (r *GormOrderRepository) FindByShop(ctx context.Context, shopID uuid.UUID, filter trade.OrderFilter) ([]trade.Order, int64, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		withShop := r.db.WithContext(ctx).
			Table("order_lines").
			Select("order_id").
			Where("shop_id = ?", shopID)
		return q.Where("id IN (?)", withShop)
	}, filter)
}

func (r *GormOrderRepository) find(ctx context.Context, scope func(*gorm.DB) *gorm.DB, filter trade.OrderFilter) ([]trade.Order, int64, error) {
	f := filter.Filter.Normalize()
	query := func() *gorm.DB {
		q := scope(r.db.WithContext(ctx).Model(&trade.Order{}))
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []trade.Order
	if err := query().
		Preload("Lines", preloadLines).
		Order("created_at DESC, id ASC").
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Create inserts an order with its lines
func (r *GormOrderRepository) Create(ctx context.Context, order *trade.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// SaveWithLock persists the status fields when the stored version still
// matches, then increments the version
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, order *trade.Order) error {
	result := r.db.WithContext(ctx).Model(&trade.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"status":       order.Status,
			"confirmed_at": order.ConfirmedAt,
			"assembled_at": order.AssembledAt,
			"sent_at":      order.SentAt,
			"delivered_at": order.DeliveredAt,
			"cancelled_at": order.CancelledAt,
			"version":      order.Version + 1,
			"updated_at":   order.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&trade.Order{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewConflictError("CONCURRENT_MODIFICATION", "The order has been modified by another request")
	}
	order.Version++
	return nil
}

var _ trade.OrderRepository = (*GormOrderRepository)(nil)
