package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grimlore/loremaster/internal/core/domain"
)

// CampaignStore is the in-process CampaignStore backend. Optimistic
// concurrency is enforced under a single mutex: an Update whose base version
// no longer matches the stored record fails with ErrConflict.
type CampaignStore struct {
	mu       sync.Mutex
	records  map[string]*domain.CampaignRecord
	versions map[string][]domain.VersionEntry
}

func NewCampaignStore() *CampaignStore {
	return &CampaignStore{
		records:  make(map[string]*domain.CampaignRecord),
		versions: make(map[string][]domain.VersionEntry),
	}
}

func (s *CampaignStore) Create(_ context.Context, record *domain.CampaignRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "memory.campaign.create",
			fmt.Errorf("record %s already exists", record.ID))
	}

	stored := cloneRecord(record)
	s.records[record.ID] = stored
	s.versions[record.ID] = append(s.versions[record.ID], domain.VersionEntry{
		RecordID:  stored.ID,
		Version:   stored.Version,
		Name:      stored.Name,
		Content:   domain.CopyContent(stored.Content),
		CreatedAt: stored.CreatedAt,
	})
	return nil
}

func (s *CampaignStore) Get(_ context.Context, id string, includeDeleted bool) (*domain.CampaignRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || (record.Deleted && !includeDeleted) {
		return nil, domain.WrapError(domain.ErrNotFound, "memory.campaign.get",
			fmt.Errorf("record %s", id))
	}
	return cloneRecord(record), nil
}

func (s *CampaignStore) GetVersion(_ context.Context, id string, version int) (*domain.VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.versions[id] {
		if entry.Version == version {
			out := entry
			out.Content = domain.CopyContent(entry.Content)
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "memory.campaign.get_version",
		fmt.Errorf("record %s version %d", id, version))
}

func (s *CampaignStore) List(_ context.Context, campaignID string, dataType domain.DataType, includeDeleted bool) ([]domain.CampaignRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CampaignRecord
	for _, record := range s.records {
		if record.CampaignID != campaignID {
			continue
		}
		if record.Deleted && !includeDeleted {
			continue
		}
		if dataType != "" && record.DataType != dataType {
			continue
		}
		out = append(out, *cloneRecord(record))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *CampaignStore) Update(_ context.Context, id string, baseVersion int, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Deleted {
		return nil, domain.WrapError(domain.ErrNotFound, "memory.campaign.update",
			fmt.Errorf("record %s", id))
	}
	if record.Version != baseVersion {
		return nil, domain.WrapError(domain.ErrConflict, "memory.campaign.update",
			fmt.Errorf("record %s is at version %d, update based on %d", id, record.Version, baseVersion))
	}

	record.Version++
	record.Name = name
	record.Content = domain.CopyContent(content)
	record.Tags = tags
	record.UpdatedAt = time.Now().UTC()

	s.versions[id] = append(s.versions[id], domain.VersionEntry{
		RecordID:  id,
		Version:   record.Version,
		Name:      record.Name,
		Content:   domain.CopyContent(record.Content),
		CreatedAt: record.UpdatedAt,
	})
	return cloneRecord(record), nil
}

func (s *CampaignStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Deleted {
		return domain.WrapError(domain.ErrNotFound, "memory.campaign.delete",
			fmt.Errorf("record %s", id))
	}
	record.Deleted = true
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *CampaignStore) History(_ context.Context, id string) ([]domain.VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.versions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "memory.campaign.history",
			fmt.Errorf("record %s", id))
	}
	out := make([]domain.VersionEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry
		out[i].Content = domain.CopyContent(entry.Content)
	}
	return out, nil
}

func cloneRecord(record *domain.CampaignRecord) *domain.CampaignRecord {
	out := *record
	out.Content = domain.CopyContent(record.Content)
	if record.Tags != nil {
		out.Tags = append([]string(nil), record.Tags...)
	}
	return &out
}
