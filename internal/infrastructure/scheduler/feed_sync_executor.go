package scheduler

import (
	"context"

	"github.com/google/uuid"
	appcatalog "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/catalog"
	"go.uber.org/zap"
)

// FeedIngestor re-ingests a price list from its URL
type FeedIngestor interface {
	IngestFromURL(ctx context.Context, partnerID uuid.UUID, rawURL string, source catalog.IngestionSource) (*appcatalog.IngestionRunView, error)
}

// FeedSyncExecutor runs feed sync jobs through the ingestion orchestrator
type FeedSyncExecutor struct {
	ingestor FeedIngestor
	logger   *zap.Logger
}

// NewFeedSyncExecutor creates a new FeedSyncExecutor
func NewFeedSyncExecutor(ingestor FeedIngestor, logger *zap.Logger) *FeedSyncExecutor {
	return &FeedSyncExecutor{ingestor: ingestor, logger: logger}
}

// Execute implements JobExecutor
func (e *FeedSyncExecutor) Execute(ctx context.Context, job *Job) error {
	run, err := e.ingestor.IngestFromURL(ctx, job.PartnerID, job.FeedURL, catalog.IngestionSourceSchedule)
	if err != nil {
		return err
	}
	e.logger.Debug("Feed re-ingested",
		zap.String("partner_id", job.PartnerID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("listings_updated", run.Stats.ListingsUpdated))
	return nil
}

var _ JobExecutor = (*FeedSyncExecutor)(nil)
