package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grimlore/loremaster/internal/core/domain"
)

type campaignStoreFake struct {
	created    *domain.CampaignRecord
	current    *domain.CampaignRecord
	snapshot   *domain.VersionEntry
	updateName string
	updateBase int
	updateErr  error
	deletedID  string
	history    []domain.VersionEntry
}

func (f *campaignStoreFake) Create(_ context.Context, record *domain.CampaignRecord) error {
	f.created = record
	return nil
}

func (f *campaignStoreFake) Get(_ context.Context, id string, _ bool) (*domain.CampaignRecord, error) {
	if f.current == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "store.get", errors.New(id))
	}
	return f.current, nil
}

func (f *campaignStoreFake) GetVersion(_ context.Context, id string, version int) (*domain.VersionEntry, error) {
	if f.snapshot == nil || f.snapshot.Version != version {
		return nil, domain.WrapError(domain.ErrNotFound, "store.get_version", errors.New(id))
	}
	return f.snapshot, nil
}

func (f *campaignStoreFake) List(context.Context, string, domain.DataType, bool) ([]domain.CampaignRecord, error) {
	return nil, nil
}

func (f *campaignStoreFake) Update(_ context.Context, id string, baseVersion int, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updateName = name
	f.updateBase = baseVersion
	return &domain.CampaignRecord{
		ID:        id,
		Name:      name,
		Content:   content,
		Version:   baseVersion + 1,
		UpdatedAt: time.Now().UTC(),
		Tags:      tags,
	}, nil
}

func (f *campaignStoreFake) SoftDelete(_ context.Context, id string) error {
	f.deletedID = id
	return nil
}

func (f *campaignStoreFake) History(context.Context, string) ([]domain.VersionEntry, error) {
	return f.history, nil
}

type publisherFake struct {
	recordIDs []string
	chunkIDs  []string
	err       error
}

func (f *publisherFake) ChunkIndexed(_ context.Context, chunkID string) error {
	f.chunkIDs = append(f.chunkIDs, chunkID)
	return f.err
}

func (f *publisherFake) RecordChanged(_ context.Context, recordID string, _ int) error {
	f.recordIDs = append(f.recordIDs, recordID)
	return f.err
}

func TestCampaignCreateStartsAtVersionOne(t *testing.T) {
	store := &campaignStoreFake{}
	publisher := &publisherFake{}
	uc := NewCampaignUseCase(store, publisher)

	record, err := uc.Create(context.Background(), "camp-1", domain.DataTypeNPC, "Strahd", map[string]any{"hp": 144}, []string{"villain"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("expected version 1, got %d", record.Version)
	}
	if record.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if store.created == nil || store.created.ID != record.ID {
		t.Fatalf("expected record forwarded to the store")
	}
	if len(publisher.recordIDs) != 1 {
		t.Fatalf("expected one change event, got %d", len(publisher.recordIDs))
	}
}

func TestCampaignCreateValidation(t *testing.T) {
	uc := NewCampaignUseCase(&campaignStoreFake{}, nil)

	cases := []struct {
		name       string
		campaignID string
		dataType   domain.DataType
		recordName string
	}{
		{"empty campaign id", "", domain.DataTypeNPC, "Strahd"},
		{"empty name", "camp-1", domain.DataTypeNPC, "  "},
		{"bad data type", "camp-1", "artifact", "Strahd"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Create(context.Background(), tc.campaignID, tc.dataType, tc.recordName, nil, nil)
			if !domain.IsKind(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCampaignUpdatePropagatesConflict(t *testing.T) {
	conflict := domain.WrapError(domain.ErrConflict, "store.update", errors.New("stale base"))
	uc := NewCampaignUseCase(&campaignStoreFake{updateErr: conflict}, &publisherFake{})

	_, err := uc.Update(context.Background(), "rec-1", 3, "Strahd", nil, nil)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCampaignRollbackWritesSnapshotAsNewVersion(t *testing.T) {
	store := &campaignStoreFake{
		current: &domain.CampaignRecord{ID: "rec-1", Name: "Strahd v5", Version: 5, Tags: []string{"villain"}},
		snapshot: &domain.VersionEntry{
			RecordID: "rec-1",
			Version:  2,
			Name:     "Strahd v2",
			Content:  map[string]any{"hp": 100},
		},
	}
	uc := NewCampaignUseCase(store, &publisherFake{})

	record, err := uc.Rollback(context.Background(), "rec-1", 2)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if record.Version != 6 {
		t.Fatalf("expected rollback to create version 6, got %d", record.Version)
	}
	if store.updateBase != 5 {
		t.Fatalf("expected update based on current version 5, got %d", store.updateBase)
	}
	if store.updateName != "Strahd v2" {
		t.Fatalf("expected snapshot name restored, got %q", store.updateName)
	}
	if record.Content["hp"] != 100 {
		t.Fatalf("expected snapshot content restored, got %v", record.Content)
	}
}

func TestCampaignRollbackRejectsFutureVersion(t *testing.T) {
	store := &campaignStoreFake{current: &domain.CampaignRecord{ID: "rec-1", Version: 3}}
	uc := NewCampaignUseCase(store, nil)

	_, err := uc.Rollback(context.Background(), "rec-1", 7)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for future target, got %v", err)
	}
}

func TestCampaignDeletePlacesTombstone(t *testing.T) {
	store := &campaignStoreFake{}
	uc := NewCampaignUseCase(store, &publisherFake{})

	if err := uc.Delete(context.Background(), "rec-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.deletedID != "rec-1" {
		t.Fatalf("expected soft delete forwarded, got %q", store.deletedID)
	}
}

func TestCampaignPublishFailureDoesNotFailOperation(t *testing.T) {
	store := &campaignStoreFake{}
	uc := NewCampaignUseCase(store, &publisherFake{err: errors.New("broker down")})

	if _, err := uc.Create(context.Background(), "camp-1", domain.DataTypePlot, "Act One", nil, nil); err != nil {
		t.Fatalf("expected publish failure to stay advisory, got %v", err)
	}
}
