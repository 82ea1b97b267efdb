package ports

import (
	"context"

	"github.com/grimlore/loremaster/internal/core/domain"
)

// RulebookSearcher is the inbound contract for hybrid search.
type RulebookSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultSet, error)
}

// ChunkIngestor is the inbound contract for the ingestion pipeline.
type ChunkIngestor interface {
	IngestChunk(ctx context.Context, chunk domain.ContentChunk, embedding []float32) (string, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// CampaignManager is the inbound contract for versioned campaign records.
type CampaignManager interface {
	Create(ctx context.Context, campaignID string, dataType domain.DataType, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error)
	Update(ctx context.Context, id string, baseVersion int, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error)
	Rollback(ctx context.Context, id string, targetVersion int) (*domain.CampaignRecord, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.CampaignRecord, error)
	GetVersion(ctx context.Context, id string, version int) (*domain.VersionEntry, error)
	List(ctx context.Context, campaignID string, dataType domain.DataType, includeDeleted bool) ([]domain.CampaignRecord, error)
	History(ctx context.Context, id string) ([]domain.VersionEntry, error)
}

// CrossReferencer is the inbound contract for record-to-chunk links.
type CrossReferencer interface {
	Link(ctx context.Context, recordID, chunkID string, weight float64) error
	Unlink(ctx context.Context, recordID, chunkID string) error
	Resolve(ctx context.Context, recordID string) ([]domain.CrossReference, error)
}
