package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate chunk")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("version conflict")
	ErrBusy             = errors.New("ingestion queue full")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
