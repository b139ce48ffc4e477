package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"go.uber.org/zap"
)

// basketWriteAttempts bounds the optimistic retry loop of basket writes
const basketWriteAttempts = 3

// BasketService manages the single open basket of each buyer. Stock is not
// reserved here; it is only checked when the order is placed.
type BasketService struct {
	store  store.Store
	logger *zap.Logger
}

// NewBasketService creates a new BasketService
func NewBasketService(s store.Store, logger *zap.Logger) *BasketService {
	return &BasketService{
		store:  s,
		logger: logger,
	}
}

// CurrentLines returns the basket lines in insertion order with live listing
// data and the basket total
func (s *BasketService) CurrentLines(ctx context.Context, buyerID uuid.UUID) (*BasketView, error) {
	basket, err := s.store.Baskets().FindByBuyer(ctx, buyerID)
	if errors.Is(err, shared.ErrNotFound) {
		return toBasketView(buyerID, nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}
	return s.view(ctx, buyerID, basket)
}

// AddLine adds qty units of a listing, merging with an existing line
func (s *BasketService) AddLine(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*BasketView, error) {
	if qty <= 0 {
		return nil, shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive")
	}
	listing, err := s.store.Listings().FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("listing", listingID)
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if !listing.IsVisible() {
		return nil, shared.NewNotFoundError("listing", listingID)
	}

	return s.modify(ctx, buyerID, true, func(b *trade.Basket) error {
		return b.AddLine(listingID, qty)
	})
}

// SetQuantity replaces the quantity of a line; zero removes it
func (s *BasketService) SetQuantity(ctx context.Context, buyerID, listingID uuid.UUID, qty int) (*BasketView, error) {
	return s.modify(ctx, buyerID, false, func(b *trade.Basket) error {
		return b.SetQuantity(listingID, qty)
	})
}

// RemoveLine drops the line of a listing
func (s *BasketService) RemoveLine(ctx context.Context, buyerID, listingID uuid.UUID) (*BasketView, error) {
	return s.modify(ctx, buyerID, false, func(b *trade.Basket) error {
		return b.RemoveLine(listingID)
	})
}

// Clear empties the basket
func (s *BasketService) Clear(ctx context.Context, buyerID uuid.UUID) (*BasketView, error) {
	view, err := s.modify(ctx, buyerID, false, func(b *trade.Basket) error {
		b.Clear()
		return nil
	})
	if errors.Is(err, errNoBasket) {
		return toBasketView(buyerID, nil, nil), nil
	}
	return view, err
}

var errNoBasket = errors.New("buyer has no basket")

// modify loads the basket, applies change and saves it, retrying when another
// request saved the basket in between
func (s *BasketService) modify(ctx context.Context, buyerID uuid.UUID, create bool, change func(*trade.Basket) error) (*BasketView, error) {
	for attempt := 1; attempt <= basketWriteAttempts; attempt++ {
		basket, err := s.store.Baskets().FindByBuyer(ctx, buyerID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			if !create {
				return nil, s.missingBasket(change)
			}
			basket = trade.NewBasket(buyerID)
		case err != nil:
			return nil, fmt.Errorf("load basket: %w", err)
		}

		if err := change(basket); err != nil {
			return nil, err
		}

		err = s.store.Baskets().Save(ctx, basket)
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.logger.Debug("Basket changed concurrently, retrying",
				zap.String("buyer_id", buyerID.String()),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save basket: %w", err)
		}
		return s.view(ctx, buyerID, basket)
	}

	s.logger.Warn("Basket write retries exhausted", zap.String("buyer_id", buyerID.String()))
	return nil, shared.NewConflictError("BASKET_CONFLICT", "The basket was changed by another request")
}

// missingBasket reports what change would have failed with on an empty basket
func (s *BasketService) missingBasket(change func(*trade.Basket) error) error {
	if err := change(trade.NewBasket(uuid.Nil)); err != nil {
		return err
	}
	return errNoBasket
}

func (s *BasketService) view(ctx context.Context, buyerID uuid.UUID, basket *trade.Basket) (*BasketView, error) {
	ids := basket.ListingIDs()
	listings := make(map[uuid.UUID]*catalog.ProductListing, len(ids))
	if len(ids) > 0 {
		found, err := s.store.Listings().FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load basket listings: %w", err)
		}
		for i := range found {
			listings[found[i].ID] = &found[i]
		}
	}
	return toBasketView(buyerID, basket, listings), nil
}
