package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ShopService lets partners inspect and toggle their shop
type ShopService struct {
	store  store.Store
	locker shared.KeyedLocker
	cache  shared.CacheInvalidator
	logger *zap.Logger
}

// NewShopService creates a new ShopService
func NewShopService(s store.Store, locker shared.KeyedLocker, cache shared.CacheInvalidator, logger *zap.Logger) *ShopService {
	return &ShopService{
		store:  s,
		locker: locker,
		cache:  cache,
		logger: logger,
	}
}

// GetState returns the partner's shop
func (s *ShopService) GetState(ctx context.Context, partnerID uuid.UUID) (*ShopStateView, error) {
	shop, err := s.findShop(ctx, s.store, partnerID)
	if err != nil {
		return nil, err
	}
	return toShopStateView(shop), nil
}

// SetActive shows or hides the partner's shop to buyers. The change shares
// the shop lock with price list ingestion.
func (s *ShopService) SetActive(ctx context.Context, partnerID uuid.UUID, active bool) (*ShopStateView, error) {
	release, err := s.locker.Acquire(ctx, catalog.ShopLockKey(partnerID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		shop    *catalog.Shop
		changed bool
	)
	err = s.store.Execute(ctx, func(repos store.Repositories) error {
		shop, err = s.findShop(ctx, repos, partnerID)
		if err != nil {
			return err
		}
		if changed = shop.SetActive(active); !changed {
			return nil
		}
		return repos.Shops().Update(ctx, shop)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.cache.Invalidate(ctx, shared.ShopScope(shop.ID))
		s.logger.Info("Shop state changed",
			zap.String("shop_id", shop.ID.String()),
			zap.String("partner_id", partnerID.String()),
			zap.Bool("active", active))
	}
	return toShopStateView(shop), nil
}

func (s *ShopService) findShop(ctx context.Context, repos store.Repositories, partnerID uuid.UUID) (*catalog.Shop, error) {
	shop, err := repos.Shops().FindByPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("shop of partner", partnerID)
		}
		return nil, fmt.Errorf("load shop: %w", err)
	}
	return shop, nil
}
