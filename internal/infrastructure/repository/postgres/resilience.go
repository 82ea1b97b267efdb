package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

// classifyStoreError decides whether a failed database operation is worth
// retrying. Domain outcomes such as not-found and version conflicts are
// final answers, not failures; connection-level errors are transient.
func classifyStoreError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	for _, kind := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrValidation, domain.ErrDuplicate} {
		if errors.Is(err, kind) {
			return resilience.ErrorClassification{}
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{RecordFailure: true}
}

func execute(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) error) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, classifyStoreError)
}
