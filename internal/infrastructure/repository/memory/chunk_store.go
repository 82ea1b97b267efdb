package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grimlore/loremaster/internal/core/domain"
)

type storedChunk struct {
	chunk     domain.ContentChunk
	embedding []float32
}

// ChunkStore is the in-process ChunkRepository backend. It exists so the
// memory storage profile still exercises the startup index rebuild path.
type ChunkStore struct {
	mu     sync.Mutex
	chunks map[string]storedChunk
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]storedChunk)}
}

func (s *ChunkStore) Save(_ context.Context, chunk domain.ContentChunk, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec := append([]float32(nil), embedding...)
	s.chunks[chunk.ID] = storedChunk{chunk: chunk, embedding: vec}
	return nil
}

func (s *ChunkStore) LoadAll(_ context.Context, fn func(chunk domain.ContentChunk, embedding []float32) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshot := make([]storedChunk, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, s.chunks[id])
	}
	s.mu.Unlock()

	for _, stored := range snapshot {
		if err := fn(stored.chunk, stored.embedding); err != nil {
			return err
		}
	}
	return nil
}
