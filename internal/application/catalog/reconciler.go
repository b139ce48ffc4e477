package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ReconcileResult describes a committed reconcile run
type ReconcileResult struct {
	ShopID uuid.UUID
	Stats  catalog.ReconcileStats
	// Scope covers the shop and every category whose listings changed,
	// including categories products moved out of.
	Scope shared.CacheScope
}

// ReconcileOption adjusts a single reconcile run
type ReconcileOption func(*reconcileOptions)

type reconcileOptions struct {
	feedURL *string
}

// WithFeedURL records the URL the price list was fetched from on the shop
func WithFeedURL(url string) ReconcileOption {
	return func(o *reconcileOptions) {
		o.feedURL = &url
	}
}

// Reconciler makes the stored catalog of one shop equal to a price list.
// Runs for the same shop are serialized by the shop lock; each run commits
// in a single transaction or not at all.
type Reconciler struct {
	store  store.Store
	locker shared.KeyedLocker
	logger *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(s store.Store, locker shared.KeyedLocker, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  s,
		locker: locker,
		logger: logger,
	}
}

// Reconcile validates doc, then replaces the partner's shop catalog with it.
// Validation failures are returned before any lock is taken or row written.
// The caller invalidates result.Scope once Reconcile has returned.
func (r *Reconciler) Reconcile(ctx context.Context, identity catalog.ShopIdentity, doc *catalog.PriceList, opts ...ReconcileOption) (*ReconcileResult, error) {
	if doc == nil {
		return nil, catalog.NewDocumentError("", -1, "document", "is empty")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if identity.Name == "" {
		identity.Name = doc.Shop
	}

	var options reconcileOptions
	for _, opt := range opts {
		opt(&options)
	}

	release, err := r.locker.Acquire(ctx, identity.LockKey())
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ReconcileResult
	err = r.store.Execute(ctx, func(repos store.Repositories) error {
		run := &reconcileRun{
			repos:      repos,
			doc:        doc,
			options:    options,
			categories: make(map[int64]*catalog.Category),
			touched:    make(map[uuid.UUID]struct{}),
		}
		var err error
		result, err = run.apply(ctx, identity)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Price list reconciled",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("partner_id", identity.PartnerID.String()),
		zap.String("shop_id", result.ShopID.String()),
		zap.Int("items", len(doc.Goods)),
		zap.Int("listings_created", result.Stats.ListingsCreated),
		zap.Int("listings_updated", result.Stats.ListingsUpdated),
		zap.Int("listings_removed", result.Stats.ListingsRemoved),
		zap.Int("parameters_created", result.Stats.ParametersCreated),
	)
	return result, nil
}

// reconcileRun holds the state of one reconcile transaction
type reconcileRun struct {
	repos      store.Repositories
	doc        *catalog.PriceList
	options    reconcileOptions
	stats      catalog.ReconcileStats
	shop       *catalog.Shop
	categories map[int64]*catalog.Category
	params     *ParameterResolver
	touched    map[uuid.UUID]struct{}
}

func (run *reconcileRun) apply(ctx context.Context, identity catalog.ShopIdentity) (*ReconcileResult, error) {
	if err := run.resolveShop(ctx, identity); err != nil {
		return nil, err
	}
	if err := run.upsertCategories(ctx); err != nil {
		return nil, err
	}
	if err := run.resolveParameters(ctx); err != nil {
		return nil, err
	}

	existing, err := run.repos.Listings().FindByShop(ctx, run.shop.ID)
	if err != nil {
		return nil, fmt.Errorf("load shop listings: %w", err)
	}
	byProduct := make(map[uuid.UUID]*catalog.ProductListing, len(existing))
	for i := range existing {
		byProduct[existing[i].ProductID] = &existing[i]
		if existing[i].Product != nil {
			run.touch(existing[i].Product.CategoryID)
		}
	}

	items := run.sortedItems()
	products, err := run.upsertProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	kept := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		product := products[it.item.Model]
		listing, err := run.upsertListing(ctx, it, product, byProduct[product.ID])
		if err != nil {
			return nil, err
		}
		kept[listing.ID] = struct{}{}
	}

	if err := run.removeAbsent(ctx, existing, kept); err != nil {
		return nil, err
	}

	run.stats.ParametersCreated = run.params.Created()
	return &ReconcileResult{
		ShopID: run.shop.ID,
		Stats:  run.stats,
		Scope:  shared.ShopScope(run.shop.ID).Merge(shared.CategoryScope(run.touchedCategories()...)),
	}, nil
}

func (run *reconcileRun) resolveShop(ctx context.Context, identity catalog.ShopIdentity) error {
	shops := run.repos.Shops()
	shop, err := shops.FindByPartner(ctx, identity.PartnerID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		shop, err = catalog.NewShop(identity)
		if err != nil {
			return err
		}
		if run.options.feedURL != nil {
			shop.SetFeedURL(*run.options.feedURL)
		}
		inserted, err := shops.Insert(ctx, shop)
		if err != nil {
			return fmt.Errorf("create shop: %w", err)
		}
		if !inserted {
			// the shop lock makes this unreachable unless the lock backend lost its key
			return shared.NewConflictError("SHOP_CREATED_CONCURRENTLY", "The shop was created by another request")
		}
		run.shop = shop
		return nil
	case err != nil:
		return fmt.Errorf("load shop: %w", err)
	}

	changed := shop.Rename(identity.Name)
	if run.options.feedURL != nil && shop.SetFeedURL(*run.options.feedURL) {
		changed = true
	}
	if changed {
		if err := shops.Update(ctx, shop); err != nil {
			return fmt.Errorf("update shop: %w", err)
		}
	}
	run.shop = shop
	return nil
}

// upsertCategories writes the document's categories in external id order and
// loads every category the items reference
func (run *reconcileRun) upsertCategories(ctx context.Context) error {
	declared := make([]catalog.PriceListCategory, len(run.doc.Categories))
	copy(declared, run.doc.Categories)
	sort.Slice(declared, func(i, j int) bool { return declared[i].ID < declared[j].ID })

	wanted := make(map[int64]struct{}, len(declared)+len(run.doc.Goods))
	for _, c := range declared {
		wanted[c.ID] = struct{}{}
	}
	for _, item := range run.doc.Goods {
		wanted[item.Category] = struct{}{}
	}
	ids := make([]int64, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	repo := run.repos.Categories()
	known, err := repo.FindByExternalIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	for i := range known {
		run.categories[known[i].ExternalID] = &known[i]
	}

	for _, c := range declared {
		if category, ok := run.categories[c.ID]; ok {
			if category.Rename(c.Name) {
				if err := repo.Update(ctx, category); err != nil {
					return fmt.Errorf("update category %d: %w", c.ID, err)
				}
				// categories are global, so other shops' reads carry the old name
				run.touch(category.ID)
				run.stats.CategoriesUpdated++
			}
			continue
		}

		category, err := catalog.NewCategory(c.ID, c.Name)
		if err != nil {
			return err
		}
		inserted, err := repo.Insert(ctx, category)
		if err != nil {
			return fmt.Errorf("create category %d: %w", c.ID, err)
		}
		if !inserted {
			// created by a concurrent run for another shop
			reloaded, err := repo.FindByExternalIDs(ctx, []int64{c.ID})
			if err != nil || len(reloaded) == 0 {
				return fmt.Errorf("reload category %d: %w", c.ID, errors.Join(err, shared.ErrNotFound))
			}
			category = &reloaded[0]
			if category.Rename(c.Name) {
				if err := repo.Update(ctx, category); err != nil {
					return fmt.Errorf("update category %d: %w", c.ID, err)
				}
				run.touch(category.ID)
			}
		} else {
			run.stats.CategoriesCreated++
		}
		run.categories[c.ID] = category
	}

	for i, item := range run.doc.Goods {
		if _, ok := run.categories[item.Category]; !ok {
			return &catalog.DocumentError{
				Section: "goods",
				Index:   i,
				Field:   "category",
				Reason:  fmt.Sprintf("category %d is neither declared nor known", item.Category),
				Kind:    shared.KindNotFound,
			}
		}
	}
	return nil
}

func (run *reconcileRun) resolveParameters(ctx context.Context) error {
	var names []string
	for _, item := range run.doc.Goods {
		for name := range item.Parameters {
			names = append(names, name)
		}
	}
	run.params = NewParameterResolver(run.repos.Parameters())
	if _, err := run.params.Resolve(ctx, names); err != nil {
		return fmt.Errorf("resolve parameters: %w", err)
	}
	return nil
}

type indexedItem struct {
	index int
	item  catalog.PriceListItem
}

func (run *reconcileRun) sortedItems() []indexedItem {
	items := make([]indexedItem, len(run.doc.Goods))
	for i, item := range run.doc.Goods {
		items[i] = indexedItem{index: i, item: item}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].item.Model < items[j].item.Model })
	return items
}

// upsertProducts writes products in model order, moving them to the
// document's category when it differs
func (run *reconcileRun) upsertProducts(ctx context.Context, items []indexedItem) (map[string]*catalog.Product, error) {
	models := make([]string, len(items))
	for i, it := range items {
		models[i] = it.item.Model
	}

	repo := run.repos.Products()
	known, err := repo.FindByModels(ctx, models)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	products := make(map[string]*catalog.Product, len(items))
	for i := range known {
		products[known[i].Model] = &known[i]
	}

	for _, it := range items {
		categoryID := run.categories[it.item.Category].ID
		run.touch(categoryID)

		product, ok := products[it.item.Model]
		if !ok {
			product, err = catalog.NewProduct(it.item.Model, it.item.Name, categoryID)
			if err != nil {
				return nil, documentError(it.index, err)
			}
			inserted, err := repo.Insert(ctx, product)
			if err != nil {
				return nil, fmt.Errorf("create product %q: %w", it.item.Model, err)
			}
			if inserted {
				run.stats.ProductsCreated++
				products[it.item.Model] = product
				continue
			}
			reloaded, err := repo.FindByModels(ctx, []string{it.item.Model})
			if err != nil || len(reloaded) == 0 {
				return nil, fmt.Errorf("reload product %q: %w", it.item.Model, errors.Join(err, shared.ErrNotFound))
			}
			product = &reloaded[0]
			products[it.item.Model] = product
		}

		change := product.Apply(it.item.Name, categoryID)
		if !change.Changed() {
			continue
		}
		if change.Moved {
			run.touch(change.FromCategory)
		}
		if err := repo.Update(ctx, product); err != nil {
			return nil, fmt.Errorf("update product %q: %w", it.item.Model, err)
		}
		run.stats.ProductsUpdated++
	}
	return products, nil
}

func (run *reconcileRun) upsertListing(ctx context.Context, it indexedItem, product *catalog.Product, listing *catalog.ProductListing) (*catalog.ProductListing, error) {
	repo := run.repos.Listings()
	terms := it.item.Terms()
	created, changed := listing == nil, false

	if created {
		fresh, err := catalog.NewProductListing(product.ID, run.shop.ID, terms)
		if err != nil {
			return nil, documentError(it.index, err)
		}
		if err := repo.Create(ctx, fresh); err != nil {
			return nil, fmt.Errorf("create listing for %q: %w", it.item.Model, err)
		}
		run.stats.ListingsCreated++
		listing = fresh
	} else {
		updated, err := listing.Apply(terms)
		if err != nil {
			return nil, documentError(it.index, err)
		}
		if updated {
			if err := repo.UpdateTerms(ctx, listing); err != nil {
				return nil, fmt.Errorf("update listing for %q: %w", it.item.Model, err)
			}
			changed = true
		}
	}

	desired := make(map[uuid.UUID]string, len(it.item.Parameters))
	for name, value := range it.item.Parameters {
		id, ok := run.params.ID(name)
		if !ok {
			return nil, fmt.Errorf("parameter %q was not resolved", name)
		}
		desired[id] = catalog.CleanParameterValue(value)
	}
	upserts, removals := listing.DiffParameters(desired)
	if len(upserts) > 0 {
		sort.Slice(upserts, func(i, j int) bool {
			return upserts[i].ParameterID.String() < upserts[j].ParameterID.String()
		})
		if err := repo.UpsertParameters(ctx, upserts); err != nil {
			return nil, fmt.Errorf("write parameters for %q: %w", it.item.Model, err)
		}
	}
	if len(removals) > 0 {
		if err := repo.DeleteParameters(ctx, listing.ID, removals); err != nil {
			return nil, fmt.Errorf("delete parameters for %q: %w", it.item.Model, err)
		}
	}
	if !created && (changed || len(upserts)+len(removals) > 0) {
		run.stats.ListingsUpdated++
	}
	return listing, nil
}

// removeAbsent deletes the shop's listings that the document no longer
// contains, together with basket lines pointing at them
func (run *reconcileRun) removeAbsent(ctx context.Context, existing []catalog.ProductListing, kept map[uuid.UUID]struct{}) error {
	var gone []uuid.UUID
	for _, l := range existing {
		if _, ok := kept[l.ID]; !ok {
			gone = append(gone, l.ID)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].String() < gone[j].String() })

	if _, err := run.repos.Baskets().RemoveLinesForListings(ctx, gone); err != nil {
		return fmt.Errorf("remove basket lines: %w", err)
	}
	if err := run.repos.Listings().DeleteByIDs(ctx, gone); err != nil {
		return fmt.Errorf("remove listings: %w", err)
	}
	run.stats.ListingsRemoved = len(gone)
	return nil
}

func (run *reconcileRun) touch(categoryID uuid.UUID) {
	if categoryID != uuid.Nil {
		run.touched[categoryID] = struct{}{}
	}
}

func (run *reconcileRun) touchedCategories() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(run.touched))
	for id := range run.touched {
		ids = append(ids, id)
	}
	return ids
}

// documentError attaches the item index to a domain validation error
func documentError(index int, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Kind == shared.KindValidation {
		return catalog.NewDocumentError("goods", index, "", de.Message)
	}
	return err
}
