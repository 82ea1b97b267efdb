package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/grimlore/loremaster/internal/config"
	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
	"github.com/grimlore/loremaster/internal/core/usecase"
	"github.com/grimlore/loremaster/internal/infrastructure/embedding"
	"github.com/grimlore/loremaster/internal/infrastructure/index/memindex"
	"github.com/grimlore/loremaster/internal/infrastructure/index/qdrant"
	linkneo4j "github.com/grimlore/loremaster/internal/infrastructure/linker/neo4j"
	"github.com/grimlore/loremaster/internal/infrastructure/queue/nats"
	"github.com/grimlore/loremaster/internal/infrastructure/repository/memory"
	"github.com/grimlore/loremaster/internal/infrastructure/repository/postgres"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
	"github.com/grimlore/loremaster/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.ServerMetrics

	SearchUC   ports.RulebookSearcher
	IngestUC   *usecase.IngestUseCase
	CampaignUC ports.CampaignManager
	LinkerUC   ports.CrossReferencer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var index ports.ChunkIndex
	var memIndex *memindex.Index
	switch cfg.IndexBackend {
	case "qdrant":
		index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDim, executor)
	default:
		memIndex = memindex.New(cfg.EmbeddingDim)
		index = memIndex
	}

	var (
		chunkRepo     ports.ChunkRepository
		campaignStore ports.CampaignStore
		linkStore     ports.LinkStore
		db            *sql.DB
	)

	switch cfg.StorageBackend {
	case "postgres":
		var err error
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		chunkRepo = postgres.NewChunkRepository(db, executor)
		campaignStore = postgres.NewCampaignRepository(db, executor)
	default:
		chunkRepo = memory.NewChunkStore()
		campaignStore = memory.NewCampaignStore()
	}

	closeLink := func(context.Context) error { return nil }
	switch cfg.LinkerBackend {
	case "neo4j":
		store, err := linkneo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, fmt.Errorf("init neo4j linker: %w", err)
		}
		linkStore = store
		closeLink = store.Close
	case "postgres":
		linkStore = postgres.NewLinkRepository(db, executor)
	default:
		linkStore = memory.NewLinkStore()
	}

	var publisher ports.EventPublisher = noopPublisher{}
	closePublisher := func() {}
	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSChunkSubject, cfg.NATSRecordSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init nats publisher: %w", err)
		}
		publisher = queue
		closePublisher = queue.Close
	}

	// Qdrant persists its own points; only the in-process index is replayed.
	if memIndex != nil {
		if err := rebuildIndex(ctx, memIndex, chunkRepo); err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	}

	embedClient := embedding.New(cfg.EmbeddingURL, cfg.EmbeddingModel, executor)
	embedCache := embedding.NewCache(cfg.EmbeddingCacheSize)

	searchUC := usecase.NewHybridSearchUseCase(embedClient, embedCache, index, linkStore, usecase.SearchConfig{
		MaxResults:          cfg.SearchMaxResults,
		SimilarityThreshold: cfg.SearchSimilarityThreshold,
		KeywordFallback:     cfg.SearchKeywordFallback,
		SemanticWeight:      cfg.SearchSemanticWeight,
		KeywordWeight:       cfg.SearchKeywordWeight,
		PathTimeout:         time.Duration(cfg.SearchPathTimeoutMS) * time.Millisecond,
		CandidateLimit:      cfg.SearchCandidates,
	})
	ingestUC := usecase.NewIngestUseCase(index, chunkRepo, publisher, usecase.IngestConfig{
		Dimension:       cfg.EmbeddingDim,
		QueueDepth:      cfg.IngestQueueDepth,
		RatePerSecond:   cfg.IngestRatePerSec,
		DuplicatePolicy: domain.DuplicatePolicy(cfg.IngestDuplicatePolicy),
	})
	campaignUC := usecase.NewCampaignUseCase(campaignStore, publisher)
	linkerUC := usecase.NewLinkerUseCase(linkStore)

	serverMetrics := metrics.NewServerMetrics(cfg.ServerName, func() float64 {
		return float64(ingestUC.Depth())
	})

	return &App{
		Config:  cfg,
		Metrics: serverMetrics,

		SearchUC:   searchUC,
		IngestUC:   ingestUC,
		CampaignUC: campaignUC,
		LinkerUC:   linkerUC,

		closeFn: func() {
			closePublisher()
			if err := closeLink(context.Background()); err != nil {
				slog.Warn("close link store", "error", err)
			}
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// rebuildIndex replays every persisted chunk into the in-process index so
// both retrieval paths are warm before the server accepts calls.
func rebuildIndex(ctx context.Context, index *memindex.Index, repo ports.ChunkRepository) error {
	start := time.Now()
	count := 0
	err := repo.LoadAll(ctx, func(chunk domain.ContentChunk, embedding []float32) error {
		if _, _, err := index.Upsert(ctx, chunk, embedding, domain.DuplicateReplace); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("index rebuilt", "chunks", count, "elapsed", time.Since(start).String())
	return nil
}

type noopPublisher struct{}

func (noopPublisher) ChunkIndexed(context.Context, string) error       { return nil }
func (noopPublisher) RecordChanged(context.Context, string, int) error { return nil }
