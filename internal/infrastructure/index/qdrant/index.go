package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
	facetLimit       = 1024
)

// Index is a qdrant-backed dual index. Each fragment is one point carrying a
// dense vector for semantic retrieval and a hashed sparse vector for keyword
// retrieval, so both query paths stay consistent per chunk id. Point ids are
// derived from the (rulebook, page, title) de-duplication key, which makes
// re-ingesting the same fragment idempotent at the storage level.
type Index struct {
	baseURL    string
	collection string
	dim        int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  bool
}

func New(baseURL, collection string, dimension int, executor *resilience.Executor) *Index {
	return &Index{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		dim:        dimension,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (idx *Index) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if idx.executor == nil {
		return fn(ctx)
	}
	return idx.executor.Execute(ctx, operation, fn, classifyIndexError)
}

// Upsert applies the duplicate policy against the de-duplication key and
// writes the fragment with both its vectors in one point operation.
func (idx *Index) Upsert(ctx context.Context, chunk domain.ContentChunk, embedding []float32, policy domain.DuplicatePolicy) (string, bool, error) {
	if len(embedding) != idx.dim {
		return "", false, domain.WrapError(domain.ErrValidation, "index upsert",
			fmt.Errorf("embedding dimension %d, want %d", len(embedding), idx.dim))
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return "", false, err
	}

	pointID := dedupPointID(chunk)

	if policy != domain.DuplicateReplace {
		existingID, found, err := idx.lookupPoint(ctx, pointID)
		if err != nil {
			return "", false, err
		}
		if found {
			if policy == domain.DuplicateSkip {
				return existingID, false, nil
			}
			return "", false, domain.WrapError(domain.ErrDuplicate, "index upsert",
				fmt.Errorf("chunk exists for %s page %d title %q", chunk.Rulebook, chunk.PageNumber, chunk.Title))
		}
	}

	if chunk.ID == "" {
		chunk.ID = pointID
	}

	sparse := encodeSparseDocument(chunk.Title, chunk.Content)
	point := map[string]any{
		"id": pointID,
		"vector": map[string]any{
			denseVectorName:  embedding,
			sparseVectorName: sparse,
		},
		"payload": map[string]any{
			"rulebook":     chunk.Rulebook,
			"system":       chunk.System,
			"content_type": string(chunk.ContentType),
			"chunk":        chunk,
		},
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", idx.baseURL, idx.collection)
	if err := idx.do(ctx, "qdrant.upsert", http.MethodPut, url, map[string]any{"points": []any{point}}, nil); err != nil {
		return "", false, domain.WrapError(domain.ErrStoreUnavailable, "index upsert", err)
	}
	return chunk.ID, true, nil
}

// VectorQuery runs cosine k-NN over the dense vectors, ties broken by
// ascending chunk id.
func (idx *Index) VectorQuery(ctx context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error) {
	if len(embedding) != idx.dim {
		return nil, domain.WrapError(domain.ErrValidation, "vector query",
			fmt.Errorf("embedding dimension %d, want %d", len(embedding), idx.dim))
	}
	return idx.query(ctx, "vector query", map[string]any{
		"query":        embedding,
		"using":        denseVectorName,
		"limit":        queryLimit(k),
		"with_payload": true,
		"filter":       matchFilter(filter),
	})
}

// KeywordQuery scores fragments against the hashed sparse vectors. Same
// filter and tie-break semantics as VectorQuery.
func (idx *Index) KeywordQuery(ctx context.Context, terms []string, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error) {
	sparse := encodeSparseQuery(terms)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	return idx.query(ctx, "keyword query", map[string]any{
		"query":        sparse,
		"using":        sparseVectorName,
		"limit":        queryLimit(k),
		"with_payload": true,
		"filter":       matchFilter(filter),
	})
}

// Stats counts the collection and facets over the filterable payload keys.
func (idx *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{
		Rulebooks:    map[string]int{},
		Systems:      map[string]int{},
		ContentTypes: map[string]int{},
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", idx.baseURL, idx.collection)
	if err := idx.do(ctx, "qdrant.count", http.MethodPost, url, map[string]any{"exact": true}, &countResp); err != nil {
		return domain.IndexStats{}, domain.WrapError(domain.ErrStoreUnavailable, "index stats", err)
	}
	stats.TotalChunks = countResp.Result.Count

	for key, dst := range map[string]map[string]int{
		"rulebook":     stats.Rulebooks,
		"system":       stats.Systems,
		"content_type": stats.ContentTypes,
	} {
		if err := idx.facet(ctx, key, dst); err != nil {
			return domain.IndexStats{}, err
		}
	}
	return stats, nil
}

func (idx *Index) facet(ctx context.Context, key string, dst map[string]int) error {
	var facetResp struct {
		Result struct {
			Hits []struct {
				Value any `json:"value"`
				Count int `json:"count"`
			} `json:"hits"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/facet", idx.baseURL, idx.collection)
	body := map[string]any{"key": key, "limit": facetLimit, "exact": true}
	if err := idx.do(ctx, "qdrant.facet", http.MethodPost, url, body, &facetResp); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "index stats", err)
	}
	for _, hit := range facetResp.Result.Hits {
		if value, ok := hit.Value.(string); ok {
			dst[value] = hit.Count
		}
	}
	return nil
}

func (idx *Index) query(ctx context.Context, operation string, body map[string]any) ([]domain.ScoredChunk, error) {
	var queryResp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", idx.baseURL, idx.collection)
	if err := idx.do(ctx, "qdrant.query", http.MethodPost, url, body, &queryResp); err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, operation, err)
	}

	out := make([]domain.ScoredChunk, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		chunk, err := decodeChunkPayload(p.Payload)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStoreUnavailable, operation, err)
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out, nil
}

// lookupPoint reports whether the de-duplication point exists and the chunk
// id it carries.
func (idx *Index) lookupPoint(ctx context.Context, pointID string) (string, bool, error) {
	var chunkID string
	var found bool
	err := idx.execute(ctx, "qdrant.lookup", func(ctx context.Context) error {
		chunkID, found = "", false

		url := fmt.Sprintf("%s/collections/%s/points/%s", idx.baseURL, idx.collection, pointID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := idx.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode >= 300 {
			return newStatusError(resp)
		}

		var pointResp struct {
			Result struct {
				Payload map[string]any `json:"payload"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&pointResp); err != nil {
			return err
		}
		chunk, err := decodeChunkPayload(pointResp.Result.Payload)
		if err != nil {
			return err
		}
		chunkID, found = chunk.ID, true
		return nil
	})
	if err != nil {
		return "", false, domain.WrapError(domain.ErrStoreUnavailable, "index lookup", err)
	}
	return chunkID, found, nil
}

func (idx *Index) ensureCollection(ctx context.Context) error {
	idx.ensureMu.Lock()
	defer idx.ensureMu.Unlock()
	if idx.ensured {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     idx.dim,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", idx.baseURL, idx.collection)
	err := idx.execute(ctx, "qdrant.ensure", func(ctx context.Context) error {
		req, err := newJSONRequest(ctx, http.MethodPut, url, body)
		if err != nil {
			return err
		}
		resp, err := idx.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 409 means the collection already exists.
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
			return newStatusError(resp)
		}
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "ensure collection", err)
	}
	idx.ensured = true
	return nil
}

func (idx *Index) do(ctx context.Context, operation, method, url string, body map[string]any, out any) error {
	return idx.execute(ctx, operation, func(ctx context.Context) error {
		req, err := newJSONRequest(ctx, method, url, body)
		if err != nil {
			return err
		}
		resp, err := idx.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newStatusError(resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func newJSONRequest(ctx context.Context, method, url string, body map[string]any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func decodeChunkPayload(payload map[string]any) (domain.ContentChunk, error) {
	raw, err := json.Marshal(payload["chunk"])
	if err != nil {
		return domain.ContentChunk{}, fmt.Errorf("encode chunk payload: %w", err)
	}
	var chunk domain.ContentChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return domain.ContentChunk{}, fmt.Errorf("decode chunk payload: %w", err)
	}
	return chunk, nil
}

// dedupPointID derives a stable UUID from the de-duplication key so the same
// fragment always lands on the same point.
func dedupPointID(chunk domain.ContentChunk) string {
	key := fmt.Sprintf("%s|%d|%s", chunk.Rulebook, chunk.PageNumber, chunk.Title)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("loremaster:chunk:"+key)).String()
}

func queryLimit(k int) int {
	if k <= 0 {
		return 10
	}
	return k
}

func matchFilter(filter domain.ChunkFilter) map[string]any {
	var must []map[string]any
	add := func(key, value string) {
		if value != "" {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
	}
	add("rulebook", filter.Rulebook)
	add("system", filter.System)
	add("content_type", string(filter.ContentType))
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}
