package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/grimlore/loremaster/internal/core/domain"
)

const titleTermBoost = 2.0

// Index is the dual vector + lexical index over content fragments.
//
// Writers are serialized by a mutex and publish a fresh immutable snapshot;
// readers grab the current snapshot pointer and score against it without
// blocking, so a query may miss a fragment whose ingest has not yet
// committed.
type Index struct {
	dim int

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type entry struct {
	chunk     domain.ContentChunk
	embedding []float32
	magnitude float64
	termFreq  map[string]float64
}

type snapshot struct {
	entries []entry
	byID    map[string]int
	byDedup map[string]string
}

// New builds an empty index that accepts embeddings of the given dimension.
func New(dimension int) *Index {
	idx := &Index{dim: dimension}
	idx.snap.Store(&snapshot{
		byID:    map[string]int{},
		byDedup: map[string]string{},
	})
	return idx
}

// Dimension reports the configured embedding dimension.
func (idx *Index) Dimension() int { return idx.dim }

// Len reports how many fragments the current snapshot holds.
func (idx *Index) Len() int { return len(idx.snap.Load().entries) }

// Upsert validates the embedding, applies the duplicate policy against the
// (rulebook, page, title) de-duplication key, and commits the fragment into
// both the vector and lexical structures under one writer lock so the two
// never diverge for a chunk id.
func (idx *Index) Upsert(_ context.Context, chunk domain.ContentChunk, embedding []float32, policy domain.DuplicatePolicy) (string, bool, error) {
	if len(embedding) != idx.dim {
		return "", false, domain.WrapError(domain.ErrValidation, "index upsert",
			fmt.Errorf("embedding dimension %d, want %d", len(embedding), idx.dim))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	key := dedupKey(chunk)

	if existingID, ok := cur.byDedup[key]; ok {
		switch policy {
		case domain.DuplicateSkip:
			return existingID, false, nil
		case domain.DuplicateReplace:
			chunk.ID = existingID
			idx.snap.Store(cur.withReplaced(existingID, newEntry(chunk, embedding)))
			return existingID, true, nil
		default:
			return "", false, domain.WrapError(domain.ErrDuplicate, "index upsert",
				fmt.Errorf("chunk exists for %s page %d title %q", chunk.Rulebook, chunk.PageNumber, chunk.Title))
		}
	}

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if pos, ok := cur.byID[chunk.ID]; ok {
		// Same id re-ingested under a new dedup key: replace in place.
		next := cur.withReplaced(chunk.ID, newEntry(chunk, embedding))
		delete(next.byDedup, dedupKey(cur.entries[pos].chunk))
		next.byDedup[key] = chunk.ID
		idx.snap.Store(next)
		return chunk.ID, true, nil
	}

	idx.snap.Store(cur.withAppended(newEntry(chunk, embedding), key))
	return chunk.ID, true, nil
}

// VectorQuery returns the k nearest fragments by cosine similarity, filtered,
// ties broken by ascending chunk id.
func (idx *Index) VectorQuery(_ context.Context, embedding []float32, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error) {
	if len(embedding) != idx.dim {
		return nil, domain.WrapError(domain.ErrValidation, "vector query",
			fmt.Errorf("embedding dimension %d, want %d", len(embedding), idx.dim))
	}
	queryMag := magnitude(embedding)
	if queryMag == 0 {
		return nil, nil
	}

	snap := idx.snap.Load()
	out := make([]domain.ScoredChunk, 0, len(snap.entries))
	for i := range snap.entries {
		e := &snap.entries[i]
		if e.magnitude == 0 || !filter.Matches(e.chunk) {
			continue
		}
		score := dot(embedding, e.embedding) / (queryMag * e.magnitude)
		if math.IsNaN(score) {
			continue
		}
		out = append(out, domain.ScoredChunk{Chunk: e.chunk, Score: score})
	}
	sortScored(out)
	return truncate(out, k), nil
}

// KeywordQuery scores fragments by term frequency over title+body, with
// title occurrences weighted higher. Same filter and tie-break semantics as
// VectorQuery.
func (idx *Index) KeywordQuery(_ context.Context, terms []string, k int, filter domain.ChunkFilter) ([]domain.ScoredChunk, error) {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		normalized = append(normalized, Tokenize(term)...)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	snap := idx.snap.Load()
	out := make([]domain.ScoredChunk, 0, 16)
	for i := range snap.entries {
		e := &snap.entries[i]
		if !filter.Matches(e.chunk) {
			continue
		}
		var score float64
		for _, term := range normalized {
			score += e.termFreq[term]
		}
		if score > 0 {
			out = append(out, domain.ScoredChunk{Chunk: e.chunk, Score: score})
		}
	}
	sortScored(out)
	return truncate(out, k), nil
}

// Stats summarizes the current snapshot.
func (idx *Index) Stats(_ context.Context) (domain.IndexStats, error) {
	snap := idx.snap.Load()
	stats := domain.IndexStats{
		TotalChunks:  len(snap.entries),
		Rulebooks:    map[string]int{},
		Systems:      map[string]int{},
		ContentTypes: map[string]int{},
	}
	for i := range snap.entries {
		c := &snap.entries[i].chunk
		stats.Rulebooks[c.Rulebook]++
		stats.Systems[c.System]++
		stats.ContentTypes[string(c.ContentType)]++
	}
	return stats, nil
}

func newEntry(chunk domain.ContentChunk, embedding []float32) entry {
	vec := append([]float32(nil), embedding...)
	tf := make(map[string]float64, 64)
	for _, token := range Tokenize(chunk.Title) {
		tf[token] += titleTermBoost
	}
	for _, token := range Tokenize(chunk.Content) {
		tf[token]++
	}
	return entry{
		chunk:     chunk,
		embedding: vec,
		magnitude: magnitude(vec),
		termFreq:  tf,
	}
}

func dedupKey(chunk domain.ContentChunk) string {
	return fmt.Sprintf("%s|%d|%s", chunk.Rulebook, chunk.PageNumber, chunk.Title)
}

// withAppended shares the entries backing array with the previous snapshot;
// readers hold the old length and never observe the new element.
func (s *snapshot) withAppended(e entry, key string) *snapshot {
	next := &snapshot{
		entries: append(s.entries, e),
		byID:    make(map[string]int, len(s.byID)+1),
		byDedup: make(map[string]string, len(s.byDedup)+1),
	}
	for id, pos := range s.byID {
		next.byID[id] = pos
	}
	for k, id := range s.byDedup {
		next.byDedup[k] = id
	}
	next.byID[e.chunk.ID] = len(next.entries) - 1
	next.byDedup[key] = e.chunk.ID
	return next
}

// withReplaced copies the entries slice so readers of the old snapshot keep
// seeing the old element.
func (s *snapshot) withReplaced(id string, e entry) *snapshot {
	next := &snapshot{
		entries: append([]entry(nil), s.entries...),
		byID:    make(map[string]int, len(s.byID)),
		byDedup: make(map[string]string, len(s.byDedup)),
	}
	for k, pos := range s.byID {
		next.byID[k] = pos
	}
	for k, v := range s.byDedup {
		next.byDedup[k] = v
	}
	next.entries[next.byID[id]] = e
	return next
}

func sortScored(scored []domain.ScoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
}

func truncate(scored []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if k <= 0 || len(scored) <= k {
		return scored
	}
	return scored[:k]
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
