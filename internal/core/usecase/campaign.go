package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
)

// CampaignUseCase manages versioned campaign records on top of a
// CampaignStore. Version numbers are forward-only: a rollback writes the
// target snapshot as a new version instead of rewinding the counter.
type CampaignUseCase struct {
	store     ports.CampaignStore
	publisher ports.EventPublisher
}

func NewCampaignUseCase(store ports.CampaignStore, publisher ports.EventPublisher) *CampaignUseCase {
	return &CampaignUseCase{store: store, publisher: publisher}
}

func (uc *CampaignUseCase) Create(
	ctx context.Context,
	campaignID string,
	dataType domain.DataType,
	name string,
	content map[string]any,
	tags []string,
) (*domain.CampaignRecord, error) {
	campaignID = strings.TrimSpace(campaignID)
	name = strings.TrimSpace(name)
	if campaignID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.create", fmt.Errorf("campaign id is empty"))
	}
	if name == "" {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.create", fmt.Errorf("record name is empty"))
	}
	if !dataType.Valid() {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.create", fmt.Errorf("unknown data type %q", dataType))
	}

	now := time.Now().UTC()
	record := &domain.CampaignRecord{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		DataType:   dataType,
		Name:       name,
		Content:    domain.CopyContent(content),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Tags:       tags,
	}
	if err := uc.store.Create(ctx, record); err != nil {
		return nil, err
	}
	uc.notifyChanged(ctx, record.ID, record.Version)
	return record, nil
}

func (uc *CampaignUseCase) Update(
	ctx context.Context,
	id string,
	baseVersion int,
	name string,
	content map[string]any,
	tags []string,
) (*domain.CampaignRecord, error) {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.update", fmt.Errorf("record id is empty"))
	}
	if name == "" {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.update", fmt.Errorf("record name is empty"))
	}
	if baseVersion < 1 {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.update", fmt.Errorf("base version %d is not positive", baseVersion))
	}

	record, err := uc.store.Update(ctx, id, baseVersion, name, domain.CopyContent(content), tags)
	if err != nil {
		return nil, err
	}
	uc.notifyChanged(ctx, record.ID, record.Version)
	return record, nil
}

// Rollback re-applies the snapshot stored at targetVersion as a brand new
// version. The target entry stays in the history untouched.
func (uc *CampaignUseCase) Rollback(ctx context.Context, id string, targetVersion int) (*domain.CampaignRecord, error) {
	if targetVersion < 1 {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.rollback", fmt.Errorf("target version %d is not positive", targetVersion))
	}

	current, err := uc.store.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if targetVersion > current.Version {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.rollback",
			fmt.Errorf("target version %d is beyond current version %d", targetVersion, current.Version))
	}

	snapshot, err := uc.store.GetVersion(ctx, id, targetVersion)
	if err != nil {
		return nil, err
	}

	record, err := uc.store.Update(ctx, id, current.Version, snapshot.Name, domain.CopyContent(snapshot.Content), current.Tags)
	if err != nil {
		return nil, err
	}
	slog.Info("record rolled back", "record_id", id, "target_version", targetVersion, "new_version", record.Version)
	uc.notifyChanged(ctx, record.ID, record.Version)
	return record, nil
}

// Delete places a tombstone. The record disappears from default reads and
// listings; its version history remains available.
func (uc *CampaignUseCase) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.WrapError(domain.ErrValidation, "campaign.delete", fmt.Errorf("record id is empty"))
	}
	if err := uc.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	uc.notifyChanged(ctx, id, 0)
	return nil
}

func (uc *CampaignUseCase) Get(ctx context.Context, id string, includeDeleted bool) (*domain.CampaignRecord, error) {
	return uc.store.Get(ctx, id, includeDeleted)
}

func (uc *CampaignUseCase) GetVersion(ctx context.Context, id string, version int) (*domain.VersionEntry, error) {
	return uc.store.GetVersion(ctx, id, version)
}

func (uc *CampaignUseCase) List(ctx context.Context, campaignID string, dataType domain.DataType, includeDeleted bool) ([]domain.CampaignRecord, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.list", fmt.Errorf("campaign id is empty"))
	}
	if dataType != "" && !dataType.Valid() {
		return nil, domain.WrapError(domain.ErrValidation, "campaign.list", fmt.Errorf("unknown data type %q", dataType))
	}
	return uc.store.List(ctx, campaignID, dataType, includeDeleted)
}

func (uc *CampaignUseCase) History(ctx context.Context, id string) ([]domain.VersionEntry, error) {
	return uc.store.History(ctx, id)
}

func (uc *CampaignUseCase) notifyChanged(ctx context.Context, recordID string, version int) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.RecordChanged(ctx, recordID, version); err != nil {
		slog.Warn("record change event not published", "record_id", recordID, "error", err)
	}
}
