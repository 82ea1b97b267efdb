package ports

import (
	"context"

	"github.com/grimlore/loremaster/internal/core/domain"
)

// Embedder is the embedding collaborator contract. It may fail; callers must
// degrade gracefully.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache memoizes query embeddings. Injected explicitly instead of a
// global toggle.
type EmbeddingCache interface {
	Get(text string) ([]float32, bool)
	Put(text string, vector []float32)
}

// ChunkIndex is the dual (vector + lexical) index over content fragments.
// Upsert applies the duplicate policy against the (rulebook, page, title)
// de-duplication key and returns the canonical chunk id; updated reports
// whether the index actually changed (false under the skip policy).
type ChunkIndex interface {
	Upsert(ctx context.Context, chunk domain.ContentChunk, embedding []float32, policy domain.DuplicatePolicy) (id string, updated bool, err error)
	VectorQuery(ctx context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error)
	KeywordQuery(ctx context.Context, terms []string, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// ChunkRepository persists fragments keyed by chunk id with their vector and
// metadata payload. LoadAll streams every stored fragment, used to rebuild
// the in-process index at startup.
type ChunkRepository interface {
	Save(ctx context.Context, chunk domain.ContentChunk, embedding []float32) error
	LoadAll(ctx context.Context, fn func(chunk domain.ContentChunk, embedding []float32) error) error
}

// CampaignStore persists versioned campaign records with an append-only
// version log per record. Update enforces optimistic concurrency: it fails
// with ErrConflict unless baseVersion equals the record's current version,
// and appends exactly one VersionEntry on success.
type CampaignStore interface {
	Create(ctx context.Context, record *domain.CampaignRecord) error
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.CampaignRecord, error)
	GetVersion(ctx context.Context, id string, version int) (*domain.VersionEntry, error)
	List(ctx context.Context, campaignID string, dataType domain.DataType, includeDeleted bool) ([]domain.CampaignRecord, error)
	Update(ctx context.Context, id string, baseVersion int, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error)
	SoftDelete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]domain.VersionEntry, error)
}

// LinkStore persists weighted record-to-chunk cross-references.
type LinkStore interface {
	Link(ctx context.Context, recordID, chunkID string, weight float64) error
	Unlink(ctx context.Context, recordID, chunkID string) error
	Resolve(ctx context.Context, recordID string) ([]domain.CrossReference, error)
}

// EventPublisher emits change notifications for external collaborators.
// Publish failures are advisory and never fail the originating call.
type EventPublisher interface {
	ChunkIndexed(ctx context.Context, chunkID string) error
	RecordChanged(ctx context.Context, recordID string, version int) error
}
