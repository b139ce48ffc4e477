package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReadCache memoizes read results by key shape
type ReadCache interface {
	GetOrCompute(ctx context.Context, key shared.CacheKey, compute func(ctx context.Context) (any, error)) (any, error)
}

// Cache key names used by catalog reads
const (
	KeyShops      = "shops"
	KeyCategories = "categories"
	KeyListings   = "listings"
	KeyListing    = "listing"
)

// QueryService serves buyer catalog reads through the read cache
type QueryService struct {
	shops      catalog.ShopRepository
	categories catalog.CategoryRepository
	listings   catalog.ListingRepository
	cache      ReadCache
	logger     *zap.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(
	shops catalog.ShopRepository,
	categories catalog.CategoryRepository,
	listings catalog.ListingRepository,
	cache ReadCache,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		shops:      shops,
		categories: categories,
		listings:   listings,
		cache:      cache,
		logger:     logger,
	}
}

// ListShops returns active shops ordered by name
func (s *QueryService) ListShops(ctx context.Context) ([]ShopView, error) {
	return cached(ctx, s.cache, shared.CacheKey{Name: KeyShops}, func(ctx context.Context) ([]ShopView, error) {
		shops, err := s.shops.FindAll(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("load shops: %w", err)
		}
		views := make([]ShopView, len(shops))
		for i := range shops {
			views[i] = toShopView(&shops[i])
		}
		return views, nil
	})
}

// ListCategories returns categories that have listings at active shops,
// optionally restricted to one shop
func (s *QueryService) ListCategories(ctx context.Context, shopID *uuid.UUID) ([]CategoryView, error) {
	key := shared.CacheKey{Name: KeyCategories, ShopID: shopID}
	return cached(ctx, s.cache, key, func(ctx context.Context) ([]CategoryView, error) {
		categories, err := s.categories.FindListed(ctx, shopID, true)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		views := make([]CategoryView, len(categories))
		for i := range categories {
			views[i] = toCategoryView(&categories[i])
		}
		return views, nil
	})
}

// ListListings searches listings of active shops
func (s *QueryService) ListListings(ctx context.Context, q ListingQuery) (shared.Paginated[ListingView], error) {
	filter := shared.Filter{Page: q.Page, PageSize: q.PageSize, Search: strings.TrimSpace(q.Search)}.Normalize()
	key := shared.CacheKey{
		Name:       KeyListings,
		ShopID:     q.ShopID,
		CategoryID: q.CategoryID,
		Params: map[string]string{
			"search":    strings.ToLower(filter.Search),
			"page":      strconv.Itoa(filter.Page),
			"page_size": strconv.Itoa(filter.PageSize),
		},
	}
	return cached(ctx, s.cache, key, func(ctx context.Context) (shared.Paginated[ListingView], error) {
		listings, total, err := s.listings.Search(ctx, catalog.ListingFilter{
			Filter:          filter,
			ShopID:          q.ShopID,
			CategoryID:      q.CategoryID,
			ActiveShopsOnly: true,
		})
		if err != nil {
			return shared.Paginated[ListingView]{}, fmt.Errorf("search listings: %w", err)
		}
		views := make([]ListingView, len(listings))
		for i := range listings {
			views[i] = ToListingView(&listings[i])
		}
		return shared.NewPaginated(views, total, filter.Page, filter.PageSize), nil
	})
}

// GetListing returns one listing with its parameters. Listings of inactive
// shops are reported as not found.
func (s *QueryService) GetListing(ctx context.Context, id uuid.UUID) (*ListingView, error) {
	key := shared.CacheKey{Name: KeyListing, Params: map[string]string{"id": id.String()}}
	view, err := cached(ctx, s.cache, key, func(ctx context.Context) (ListingView, error) {
		listing, err := s.listings.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ListingView{}, shared.NewNotFoundError("listing", id)
			}
			return ListingView{}, fmt.Errorf("load listing: %w", err)
		}
		if !listing.IsVisible() {
			return ListingView{}, shared.NewNotFoundError("listing", id)
		}
		return ToListingView(listing), nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// cached runs compute through the read cache and restores the result type
func cached[T any](ctx context.Context, cache ReadCache, key shared.CacheKey, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cache == nil {
		return compute(ctx)
	}
	v, err := cache.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
		return compute(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return out, nil
}
