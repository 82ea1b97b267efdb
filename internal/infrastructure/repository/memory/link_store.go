package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grimlore/loremaster/internal/core/domain"
)

// LinkStore keeps record-to-chunk cross-references in process. Linking the
// same pair twice overwrites the weight.
type LinkStore struct {
	mu    sync.Mutex
	links map[string]map[string]float64
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[string]map[string]float64)}
}

func (s *LinkStore) Link(_ context.Context, recordID, chunkID string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, ok := s.links[recordID]
	if !ok {
		chunks = make(map[string]float64)
		s.links[recordID] = chunks
	}
	chunks[chunkID] = weight
	return nil
}

func (s *LinkStore) Unlink(_ context.Context, recordID, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chunks, ok := s.links[recordID]; ok {
		delete(chunks, chunkID)
		if len(chunks) == 0 {
			delete(s.links, recordID)
		}
	}
	return nil
}

func (s *LinkStore) Resolve(_ context.Context, recordID string) ([]domain.CrossReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.links[recordID]
	out := make([]domain.CrossReference, 0, len(chunks))
	for chunkID, weight := range chunks {
		out = append(out, domain.CrossReference{RecordID: recordID, ChunkID: chunkID, Weight: weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}
