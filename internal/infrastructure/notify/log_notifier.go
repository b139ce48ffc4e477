package notify

import (
	"context"

	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LogNotifier writes every lifecycle event to the log. It is always
// subscribed and stands in for mail delivery to partners and buyers.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// EventTypes implements shared.EventHandler
func (n *LogNotifier) EventTypes() []string { return lifecycleEvents }

// Handle implements shared.EventHandler
func (n *LogNotifier) Handle(_ context.Context, e shared.DomainEvent) error {
	msg, err := messageFrom(e)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("order_id", msg.OrderID.String()),
		zap.String("buyer_id", msg.BuyerID.String()),
		zap.String("new_status", msg.NewStatus),
		zap.String("total", msg.Total),
		zap.Int("shops", len(msg.ShopIDs)),
	}
	if msg.OldStatus == "" {
		n.logger.Info("New order notification", fields...)
		return nil
	}
	n.logger.Info("Order status notification", append(fields, zap.String("old_status", msg.OldStatus))...)
	return nil
}

var _ shared.EventHandler = (*LogNotifier)(nil)
