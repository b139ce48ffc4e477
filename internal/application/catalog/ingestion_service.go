package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"github.com/procurement/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PriceListCodec converts between raw documents and price lists
type PriceListCodec interface {
	// Decode parses raw in the given format ("yaml" or "json"); an empty
	// format is detected from the content
	Decode(raw []byte, format string) (*catalog.PriceList, error)
	Encode(doc *catalog.PriceList, format string) ([]byte, error)
}

// PriceListFetcher downloads a published price list
type PriceListFetcher interface {
	// Fetch returns the document body and its format, when the server names one
	Fetch(ctx context.Context, url string) (raw []byte, format string, err error)
}

// IngestionMetrics records ingestion outcomes
type IngestionMetrics interface {
	RecordIngestion(ctx context.Context, source, status string, duration time.Duration, stats catalog.ReconcileStats)
}

// IngestionOption configures an IngestionService
type IngestionOption func(*IngestionService)

// WithFetcher enables ingestion from URLs
func WithFetcher(f PriceListFetcher) IngestionOption {
	return func(s *IngestionService) {
		s.fetcher = f
	}
}

// WithIngestionMetrics reports every run to m
func WithIngestionMetrics(m IngestionMetrics) IngestionOption {
	return func(s *IngestionService) {
		s.metrics = m
	}
}

// IngestionService accepts price lists from partners, reconciles them and
// invalidates the affected cached reads. Every attempt is recorded as an
// ingestion run.
type IngestionService struct {
	store      store.Store
	reconciler *Reconciler
	codec      PriceListCodec
	cache      shared.CacheInvalidator
	fetcher    PriceListFetcher
	metrics    IngestionMetrics
	logger     *zap.Logger
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(
	s store.Store,
	reconciler *Reconciler,
	codec PriceListCodec,
	cache shared.CacheInvalidator,
	logger *zap.Logger,
	opts ...IngestionOption,
) *IngestionService {
	svc := &IngestionService{
		store:      s,
		reconciler: reconciler,
		codec:      codec,
		cache:      cache,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IngestDocument decodes raw and reconciles it into the partner's shop.
// The returned run is recorded whether or not ingestion succeeded.
func (s *IngestionService) IngestDocument(ctx context.Context, partnerID uuid.UUID, raw []byte, format string, source catalog.IngestionSource) (*IngestionRunView, error) {
	run := catalog.StartIngestionRun(partnerID, source, "")
	doc, err := s.codec.Decode(raw, format)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	return s.reconcile(ctx, run, doc)
}

// IngestFromURL fetches the price list published at rawURL and reconciles it.
// On success the URL is stored as the shop's feed, which the feed scheduler
// polls.
func (s *IngestionService) IngestFromURL(ctx context.Context, partnerID uuid.UUID, rawURL string, source catalog.IngestionSource) (*IngestionRunView, error) {
	run := catalog.StartIngestionRun(partnerID, source, rawURL)
	if s.fetcher == nil {
		return s.fail(ctx, run, shared.NewValidationError("URL_INGESTION_DISABLED", "Ingestion from URL is not enabled"))
	}
	if err := validateFeedURL(rawURL); err != nil {
		return s.fail(ctx, run, err)
	}

	raw, format, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if shared.KindOf(err) == "" {
			err = fmt.Errorf("%w: %w", shared.NewValidationError("FEED_UNAVAILABLE", "Could not fetch "+rawURL), err)
		}
		return s.fail(ctx, run, err)
	}
	doc, err := s.codec.Decode(raw, format)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	return s.reconcile(ctx, run, doc, WithFeedURL(rawURL))
}

// ExportShopCatalog renders the partner's current listings as a price list
// document in the given format
func (s *IngestionService) ExportShopCatalog(ctx context.Context, partnerID uuid.UUID, format string) ([]byte, error) {
	shop, err := s.store.Shops().FindByPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("shop of partner", partnerID)
		}
		return nil, err
	}
	listings, err := s.store.Listings().FindByShop(ctx, shop.ID)
	if err != nil {
		return nil, fmt.Errorf("load shop listings: %w", err)
	}
	return s.codec.Encode(BuildPriceList(shop, listings), format)
}

// ListRuns returns the partner's most recent ingestion runs
func (s *IngestionService) ListRuns(ctx context.Context, partnerID uuid.UUID, limit int) ([]IngestionRunView, error) {
	runs, err := s.store.IngestionRuns().FindByPartner(ctx, partnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("load ingestion runs: %w", err)
	}
	views := make([]IngestionRunView, len(runs))
	for i := range runs {
		views[i] = *toIngestionRunView(&runs[i])
	}
	return views, nil
}

func (s *IngestionService) reconcile(ctx context.Context, run *catalog.IngestionRun, doc *catalog.PriceList, opts ...ReconcileOption) (*IngestionRunView, error) {
	spanCtx, span := telemetry.StartSpan(ctx, "catalog.reconcile",
		attribute.String("partner_id", run.PartnerID.String()),
		attribute.String("source", string(run.Source)),
		attribute.Int("goods", len(doc.Goods)))
	result, err := s.reconciler.Reconcile(spanCtx, catalog.ShopIdentity{PartnerID: run.PartnerID, Name: doc.Shop}, doc, opts...)
	telemetry.EndSpan(span, err)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	s.cache.Invalidate(ctx, result.Scope)

	run.Succeed(result.ShopID, result.Stats)
	s.record(ctx, run)
	s.logger.Info("Price list import completed",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("run_id", run.ID.String()),
		zap.String("partner_id", run.PartnerID.String()),
		zap.String("shop_id", result.ShopID.String()),
		zap.String("source", string(run.Source)),
		zap.Duration("duration", run.Duration()),
		zap.String("scope", result.Scope.String()),
	)
	return toIngestionRunView(run), nil
}

func (s *IngestionService) fail(ctx context.Context, run *catalog.IngestionRun, err error) (*IngestionRunView, error) {
	run.Fail(err)
	s.record(ctx, run)
	s.logger.Warn("Price list import failed",
		zap.String("request_id", logger.GetRequestID(ctx)),
		zap.String("run_id", run.ID.String()),
		zap.String("partner_id", run.PartnerID.String()),
		zap.String("source", string(run.Source)),
		zap.String("kind", string(shared.KindOf(err))),
		zap.Error(err),
	)
	return toIngestionRunView(run), err
}

// record stores the run outside the reconcile transaction. A failure to
// record never changes the ingestion outcome.
func (s *IngestionService) record(ctx context.Context, run *catalog.IngestionRun) {
	if err := s.store.IngestionRuns().Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("Failed to record ingestion run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordIngestion(ctx, string(run.Source), string(run.Status), run.Duration(), run.Stats)
	}
}

// BuildPriceList renders listings loaded with product, category and
// parameters back into a price list document
func BuildPriceList(shop *catalog.Shop, listings []catalog.ProductListing) *catalog.PriceList {
	doc := &catalog.PriceList{
		Shop:       shop.Name,
		Categories: make([]catalog.PriceListCategory, 0),
		Goods:      make([]catalog.PriceListItem, 0, len(listings)),
	}

	seen := make(map[int64]struct{})
	for i := range listings {
		l := &listings[i]
		if l.Product == nil || l.Product.Category == nil {
			continue
		}
		category := l.Product.Category
		if _, ok := seen[category.ExternalID]; !ok {
			seen[category.ExternalID] = struct{}{}
			doc.Categories = append(doc.Categories, catalog.PriceListCategory{ID: category.ExternalID, Name: category.Name})
		}

		price, rrc, qty := l.Price, l.PriceRRC, l.Quantity
		item := catalog.PriceListItem{
			ID:       l.ExternalID,
			Category: category.ExternalID,
			Model:    l.Product.Model,
			Name:     l.Product.Name,
			Price:    &price,
			PriceRRC: &rrc,
			Quantity: &qty,
		}
		if len(l.Parameters) > 0 {
			item.Parameters = l.ParameterMap()
		}
		doc.Goods = append(doc.Goods, item)
	}

	sort.Slice(doc.Categories, func(i, j int) bool { return doc.Categories[i].ID < doc.Categories[j].ID })
	sort.Slice(doc.Goods, func(i, j int) bool { return doc.Goods[i].Model < doc.Goods[j].Model })
	return doc
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return shared.NewValidationError("INVALID_FEED_URL", "Feed URL must be an absolute http(s) URL")
	}
	return nil
}
