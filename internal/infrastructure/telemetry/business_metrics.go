package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/procurement/backend/internal/domain/catalog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

var (
	AttrCacheName       = attribute.Key("cache.name")
	AttrCacheResult     = attribute.Key("cache.result")
	AttrIngestionSource = attribute.Key("ingestion.source")
	AttrIngestionStatus = attribute.Key("ingestion.status")
	AttrListingChange   = attribute.Key("listing.change")
	AttrOrderStatusFrom = attribute.Key("order.status.from")
	AttrOrderStatusTo   = attribute.Key("order.status.to")
)

// IngestionDurationBuckets are the histogram bounds of a price list run, in
// seconds
var IngestionDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ProcurementMetrics records read cache effectiveness, ingestion outcomes
// and order lifecycle steps. It is the metrics hook of the cache
// coordinator, the ingestion service and the order service.
type ProcurementMetrics struct {
	cacheLookups      metric.Int64Counter
	ingestionRuns     metric.Int64Counter
	ingestionDuration metric.Float64Histogram
	listingChanges    metric.Int64Counter
	orderTransitions  metric.Int64Counter
}

func NewProcurementMetrics(meter metric.Meter) (*ProcurementMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &ProcurementMetrics{}
	var errs [5]error
	m.cacheLookups, errs[0] = meter.Int64Counter("procurement_cache_lookups_total",
		metric.WithDescription("Read cache lookups by result"), metric.WithUnit("{lookups}"))
	m.ingestionRuns, errs[1] = meter.Int64Counter("procurement_ingestion_runs_total",
		metric.WithDescription("Price list ingestion runs"), metric.WithUnit("{runs}"))
	m.ingestionDuration, errs[2] = meter.Float64Histogram("procurement_ingestion_duration_seconds",
		metric.WithDescription("Price list ingestion duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(IngestionDurationBuckets...))
	m.listingChanges, errs[3] = meter.Int64Counter("procurement_listing_changes_total",
		metric.WithDescription("Listings created, updated or removed by ingestion"), metric.WithUnit("{listings}"))
	m.orderTransitions, errs[4] = meter.Int64Counter("procurement_order_transitions_total",
		metric.WithDescription("Order lifecycle steps, placement included"), metric.WithUnit("{transitions}"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCacheLookup counts one cached read
func (m *ProcurementMetrics) RecordCacheLookup(ctx context.Context, name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(AttrCacheName.String(name), AttrCacheResult.String(result)))
}

// RecordIngestion records a finished ingestion run and the listing changes
// it made
func (m *ProcurementMetrics) RecordIngestion(ctx context.Context, source, status string, duration time.Duration, stats catalog.ReconcileStats) {
	run := metric.WithAttributes(AttrIngestionSource.String(source), AttrIngestionStatus.String(status))
	m.ingestionRuns.Add(ctx, 1, run)
	m.ingestionDuration.Record(ctx, duration.Seconds(), run)

	for change, n := range map[string]int{
		"created": stats.ListingsCreated,
		"updated": stats.ListingsUpdated,
		"removed": stats.ListingsRemoved,
	} {
		if n > 0 {
			m.listingChanges.Add(ctx, int64(n), metric.WithAttributes(AttrListingChange.String(change)))
		}
	}
}

// RecordOrderTransition counts one lifecycle step; from is empty on placement
func (m *ProcurementMetrics) RecordOrderTransition(ctx context.Context, from, to string) {
	if from == "" {
		from = "none"
	}
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(AttrOrderStatusFrom.String(from), AttrOrderStatusTo.String(to)))
}
