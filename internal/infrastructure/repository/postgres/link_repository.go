package postgres

import (
	"context"
	"database/sql"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

// LinkRepository is the durable LinkStore backend. Relinking an existing
// pair upserts the weight.
type LinkRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewLinkRepository(db *sql.DB, executor *resilience.Executor) *LinkRepository {
	return &LinkRepository{db: db, executor: executor}
}

func (r *LinkRepository) Link(ctx context.Context, recordID, chunkID string, weight float64) error {
	err := execute(ctx, r.executor, "postgres.link.link", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO links (record_id, chunk_id, weight)
VALUES ($1,$2,$3)
ON CONFLICT (record_id, chunk_id) DO UPDATE SET weight = EXCLUDED.weight
`, recordID, chunkID, weight)
		return err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.link.link", err)
	}
	return nil
}

func (r *LinkRepository) Unlink(ctx context.Context, recordID, chunkID string) error {
	err := execute(ctx, r.executor, "postgres.link.unlink", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
DELETE FROM links WHERE record_id = $1 AND chunk_id = $2
`, recordID, chunkID)
		return err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.link.unlink", err)
	}
	return nil
}

func (r *LinkRepository) Resolve(ctx context.Context, recordID string) ([]domain.CrossReference, error) {
	var out []domain.CrossReference
	err := execute(ctx, r.executor, "postgres.link.resolve", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, `
SELECT record_id, chunk_id, weight
FROM links
WHERE record_id = $1
ORDER BY weight DESC, chunk_id
`, recordID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var ref domain.CrossReference
			if err := rows.Scan(&ref.RecordID, &ref.ChunkID, &ref.Weight); err != nil {
				return err
			}
			out = append(out, ref)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "postgres.link.resolve", err)
	}
	return out, nil
}
