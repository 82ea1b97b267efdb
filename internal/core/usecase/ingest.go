package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
)

// IngestConfig caps how fast and how deep the ingestion pipeline admits work.
type IngestConfig struct {
	Dimension       int
	QueueDepth      int
	RatePerSecond   float64
	DuplicatePolicy domain.DuplicatePolicy
}

func (c IngestConfig) normalize() IngestConfig {
	out := c
	if out.QueueDepth <= 0 {
		out.QueueDepth = 64
	}
	if out.RatePerSecond <= 0 {
		out.RatePerSecond = 50
	}
	if out.DuplicatePolicy == "" {
		out.DuplicatePolicy = domain.DuplicateError
	}
	return out
}

// IngestUseCase admits pre-embedded content fragments into the dual index and
// the durable chunk repository. Admission is bounded: when the in-flight slot
// pool is exhausted the call fails fast with ErrBusy instead of queueing
// unboundedly.
type IngestUseCase struct {
	index     ports.ChunkIndex
	repo      ports.ChunkRepository
	publisher ports.EventPublisher
	limiter   *rate.Limiter
	slots     chan struct{}
	cfg       IngestConfig
}

func NewIngestUseCase(
	index ports.ChunkIndex,
	repo ports.ChunkRepository,
	publisher ports.EventPublisher,
	cfg IngestConfig,
) *IngestUseCase {
	cfg = cfg.normalize()
	return &IngestUseCase{
		index:     index,
		repo:      repo,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.QueueDepth),
		slots:     make(chan struct{}, cfg.QueueDepth),
		cfg:       cfg,
	}
}

// IngestChunk validates, indexes, and persists one fragment. The index owns
// de-duplication: only when it reports a change is the repository written.
func (uc *IngestUseCase) IngestChunk(ctx context.Context, chunk domain.ContentChunk, embedding []float32) (string, error) {
	if err := uc.validate(chunk, embedding); err != nil {
		return "", err
	}

	select {
	case uc.slots <- struct{}{}:
		defer func() { <-uc.slots }()
	default:
		return "", domain.WrapError(domain.ErrBusy, "ingest.chunk",
			fmt.Errorf("admission pool of %d is full", uc.cfg.QueueDepth))
	}

	if err := uc.limiter.Wait(ctx); err != nil {
		return "", err
	}

	id, updated, err := uc.index.Upsert(ctx, chunk, embedding, uc.cfg.DuplicatePolicy)
	if err != nil {
		return "", err
	}
	if !updated {
		return id, nil
	}

	chunk.ID = id
	if uc.repo != nil {
		if err := uc.repo.Save(ctx, chunk, embedding); err != nil {
			return "", err
		}
	}
	if uc.publisher != nil {
		if err := uc.publisher.ChunkIndexed(ctx, id); err != nil {
			slog.Warn("chunk indexed event not published", "chunk_id", id, "error", err)
		}
	}
	return id, nil
}

func (uc *IngestUseCase) Stats(ctx context.Context) (domain.IndexStats, error) {
	return uc.index.Stats(ctx)
}

// Depth reports how many ingest calls currently hold an admission slot.
func (uc *IngestUseCase) Depth() int {
	return len(uc.slots)
}

func (uc *IngestUseCase) validate(chunk domain.ContentChunk, embedding []float32) error {
	if strings.TrimSpace(chunk.Rulebook) == "" {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("rulebook is empty"))
	}
	if strings.TrimSpace(chunk.Title) == "" {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("title is empty"))
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("content is empty"))
	}
	if chunk.PageNumber < 1 {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("page number %d is not positive", chunk.PageNumber))
	}
	if !chunk.ContentType.Valid() {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("unknown content type %q", chunk.ContentType))
	}
	if len(chunk.SectionPath) == 0 {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("section path is empty"))
	}
	for _, section := range chunk.SectionPath {
		if strings.TrimSpace(section) == "" {
			return domain.WrapError(domain.ErrValidation, "ingest.chunk", fmt.Errorf("section path contains a blank segment"))
		}
	}
	if uc.cfg.Dimension > 0 && len(embedding) != uc.cfg.Dimension {
		return domain.WrapError(domain.ErrValidation, "ingest.chunk",
			fmt.Errorf("embedding dimension %d, want %d", len(embedding), uc.cfg.Dimension))
	}
	return nil
}
