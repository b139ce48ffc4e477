package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	appcatalog "github.com/procurement/backend/internal/application/catalog"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubIngestor struct {
	partner uuid.UUID
	url     string
	source  catalog.IngestionSource
	err     error
}

func (s *stubIngestor) IngestFromURL(_ context.Context, partnerID uuid.UUID, rawURL string, source catalog.IngestionSource) (*appcatalog.IngestionRunView, error) {
	s.partner, s.url, s.source = partnerID, rawURL, source
	if s.err != nil {
		return &appcatalog.IngestionRunView{ID: uuid.New(), Status: string(catalog.IngestionStatusFailed)}, s.err
	}
	return &appcatalog.IngestionRunView{ID: uuid.New(), Status: string(catalog.IngestionStatusSucceeded)}, nil
}

func TestFeedSyncExecutor(t *testing.T) {
	ingestor := &stubIngestor{}
	exec := NewFeedSyncExecutor(ingestor, zap.NewNop())
	job := NewJob(uuid.New(), "https://example.com/p.yaml", 0)

	require.NoError(t, exec.Execute(context.Background(), job))
	assert.Equal(t, job.PartnerID, ingestor.partner)
	assert.Equal(t, job.FeedURL, ingestor.url)
	assert.Equal(t, catalog.IngestionSourceSchedule, ingestor.source)

	ingestor.err = shared.NewResourceBusyError("shop")
	err := exec.Execute(context.Background(), job)
	assert.True(t, shared.IsKind(err, shared.KindResourceBusy))
}
