package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
)

// SearchConfig fixes the orchestrator's merge and degradation behavior.
type SearchConfig struct {
	MaxResults          int
	SimilarityThreshold float64
	KeywordFallback     bool
	SemanticWeight      float64
	KeywordWeight       float64
	PathTimeout         time.Duration
	CandidateLimit      int
}

func (c SearchConfig) normalize() SearchConfig {
	out := c
	if out.MaxResults <= 0 {
		out.MaxResults = 5
	}
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.7
	}
	if out.SemanticWeight <= 0 && out.KeywordWeight <= 0 {
		out.SemanticWeight, out.KeywordWeight = 0.7, 0.3
	}
	if out.PathTimeout <= 0 {
		out.PathTimeout = 2 * time.Second
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = 30
	}
	return out
}

// HybridSearchUseCase fans a query out to the vector and keyword paths,
// fuses the two ranked lists, boosts cross-referenced chunks, and returns a
// deterministic ordering. A failed embedding call or retrieval path degrades
// the result set instead of failing it.
type HybridSearchUseCase struct {
	embedder ports.Embedder
	cache    ports.EmbeddingCache
	index    ports.ChunkIndex
	links    ports.LinkStore
	cfg      SearchConfig
}

func NewHybridSearchUseCase(
	embedder ports.Embedder,
	cache ports.EmbeddingCache,
	index ports.ChunkIndex,
	links ports.LinkStore,
	cfg SearchConfig,
) *HybridSearchUseCase {
	return &HybridSearchUseCase{
		embedder: embedder,
		cache:    cache,
		index:    index,
		links:    links,
		cfg:      cfg.normalize(),
	}
}

func (uc *HybridSearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultSet, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &domain.ResultSet{Results: []domain.SearchResult{}}, nil
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = uc.cfg.MaxResults
	}

	degraded := false
	queryVector, err := uc.embedQuery(ctx, query)
	if err != nil {
		slog.Warn("embedding unavailable, degrading to keyword-only", "error", err)
		degraded = true
		queryVector = nil
	}

	semantic, keyword, pathDegraded := uc.retrieve(ctx, query, queryVector, req.Filter)
	degraded = degraded || pathDegraded

	candidates := fuseCandidates(semantic, keyword, uc.cfg.SemanticWeight, uc.cfg.KeywordWeight)

	if req.CampaignContext != "" {
		uc.applyCrossReferenceBoost(ctx, req.CampaignContext, candidates)
		sortCandidates(candidates)
	}

	// Keyword fallback: when the vector path produced nothing, keyword hits
	// are returned regardless of the similarity threshold.
	keywordOnly := len(semantic) == 0 && uc.cfg.KeywordFallback

	terms := lowercaseTerms(query)
	results := make([]domain.SearchResult, 0, maxResults)
	for _, cand := range candidates {
		score := clampScore(cand.score)
		matchType := cand.matchType()
		if keywordOnly {
			matchType = domain.MatchKeyword
		} else if score < uc.cfg.SimilarityThreshold {
			continue
		}
		results = append(results, domain.SearchResult{
			Chunk:     cand.chunk,
			Score:     score,
			MatchType: matchType,
			Highlight: highlightExcerpt(cand.chunk.Content, terms),
		})
		if len(results) == maxResults {
			break
		}
	}

	return &domain.ResultSet{Results: results, Degraded: degraded}, nil
}

// retrieve runs both paths concurrently, each under its own timeout, and
// joins them. A path that fails or times out is treated as empty and flags
// the result set as degraded; whatever completed is still ranked and
// returned, even past the overall deadline.
func (uc *HybridSearchUseCase) retrieve(
	ctx context.Context,
	query string,
	queryVector []float32,
	filter domain.ChunkFilter,
) (semantic, keyword []domain.ScoredChunk, degraded bool) {
	var wg sync.WaitGroup
	var semErr, kwErr error

	if len(queryVector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pathCtx, cancel := context.WithTimeout(ctx, uc.cfg.PathTimeout)
			defer cancel()
			semantic, semErr = uc.index.VectorQuery(pathCtx, queryVector, uc.cfg.CandidateLimit, filter)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pathCtx, cancel := context.WithTimeout(ctx, uc.cfg.PathTimeout)
		defer cancel()
		keyword, kwErr = uc.index.KeywordQuery(pathCtx, strings.Fields(query), uc.cfg.CandidateLimit, filter)
	}()

	wg.Wait()

	if semErr != nil {
		slog.Warn("vector retrieval path unavailable", "error", semErr)
		semantic = nil
		degraded = true
	}
	if kwErr != nil {
		slog.Warn("keyword retrieval path unavailable", "error", kwErr)
		keyword = nil
		degraded = true
	}
	return semantic, keyword, degraded
}

func (uc *HybridSearchUseCase) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if uc.cache != nil {
		if vec, ok := uc.cache.Get(query); ok {
			return vec, nil
		}
	}
	vec, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if uc.cache != nil {
		uc.cache.Put(query, vec)
	}
	return vec, nil
}

// applyCrossReferenceBoost adds each chunk's link weight for the campaign
// record in context to its combined score. A linker failure only skips the
// boost; the search still answers.
func (uc *HybridSearchUseCase) applyCrossReferenceBoost(ctx context.Context, recordID string, candidates []mergedCandidate) {
	refs, err := uc.links.Resolve(ctx, recordID)
	if err != nil {
		slog.Warn("cross-reference boost skipped", "record_id", recordID, "error", err)
		return
	}
	if len(refs) == 0 {
		return
	}
	weights := make(map[string]float64, len(refs))
	for _, ref := range refs {
		weights[ref.ChunkID] = ref.Weight
	}
	for i := range candidates {
		candidates[i].score += weights[candidates[i].chunk.ID]
	}
}

func lowercaseTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
