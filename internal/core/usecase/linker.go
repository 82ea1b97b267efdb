package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
)

// LinkerUseCase validates and forwards record-to-chunk cross-references.
// Linking the same pair twice is an upsert on the weight, never an error.
type LinkerUseCase struct {
	store ports.LinkStore
}

func NewLinkerUseCase(store ports.LinkStore) *LinkerUseCase {
	return &LinkerUseCase{store: store}
}

func (uc *LinkerUseCase) Link(ctx context.Context, recordID, chunkID string, weight float64) error {
	if strings.TrimSpace(recordID) == "" {
		return domain.WrapError(domain.ErrValidation, "linker.link", fmt.Errorf("record id is empty"))
	}
	if strings.TrimSpace(chunkID) == "" {
		return domain.WrapError(domain.ErrValidation, "linker.link", fmt.Errorf("chunk id is empty"))
	}
	if weight < 0 || weight > 1 {
		return domain.WrapError(domain.ErrValidation, "linker.link", fmt.Errorf("weight %v outside [0,1]", weight))
	}
	return uc.store.Link(ctx, recordID, chunkID, weight)
}

func (uc *LinkerUseCase) Unlink(ctx context.Context, recordID, chunkID string) error {
	if strings.TrimSpace(recordID) == "" {
		return domain.WrapError(domain.ErrValidation, "linker.unlink", fmt.Errorf("record id is empty"))
	}
	if strings.TrimSpace(chunkID) == "" {
		return domain.WrapError(domain.ErrValidation, "linker.unlink", fmt.Errorf("chunk id is empty"))
	}
	return uc.store.Unlink(ctx, recordID, chunkID)
}

func (uc *LinkerUseCase) Resolve(ctx context.Context, recordID string) ([]domain.CrossReference, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "linker.resolve", fmt.Errorf("record id is empty"))
	}
	return uc.store.Resolve(ctx, recordID)
}
