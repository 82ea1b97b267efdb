package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

// CampaignRepository is the durable CampaignStore backend. Optimistic
// concurrency rides on a conditional UPDATE: the write only lands when the
// stored version still equals the caller's base version. Every operation runs
// through the shared executor so connection-level failures are retried before
// a store error surfaces.
type CampaignRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewCampaignRepository(db *sql.DB, executor *resilience.Executor) *CampaignRepository {
	return &CampaignRepository{db: db, executor: executor}
}

func (r *CampaignRepository) Create(ctx context.Context, record *domain.CampaignRecord) error {
	contentJSON, tagsJSON, err := marshalRecordPayload(record.Content, record.Tags)
	if err != nil {
		return err
	}

	return execute(ctx, r.executor, "postgres.campaign.create", func(ctx context.Context) error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.create", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		_, err = tx.ExecContext(ctx, `
INSERT INTO campaign_records (
	id, campaign_id, data_type, name, content, version, tags, deleted, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,$9)
`,
			record.ID, record.CampaignID, string(record.DataType), record.Name, contentJSON,
			record.Version, tagsJSON, record.CreatedAt, record.UpdatedAt,
		)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.create", err)
		}

		if err := insertVersionEntry(ctx, tx, record.ID, record.Version, record.Name, contentJSON, record.CreatedAt); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.create", err)
		}
		return nil
	})
}

func (r *CampaignRepository) Get(ctx context.Context, id string, includeDeleted bool) (*domain.CampaignRecord, error) {
	query := `
SELECT id, campaign_id, data_type, name, content, version, tags, deleted, created_at, updated_at
FROM campaign_records
WHERE id = $1
`
	if !includeDeleted {
		query += ` AND NOT deleted`
	}

	var record *domain.CampaignRecord
	err := execute(ctx, r.executor, "postgres.campaign.get", func(ctx context.Context) error {
		var err error
		record, err = scanRecord(r.db.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "postgres.campaign.get", fmt.Errorf("record %s", id))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *CampaignRepository) GetVersion(ctx context.Context, id string, version int) (*domain.VersionEntry, error) {
	var entry domain.VersionEntry
	err := execute(ctx, r.executor, "postgres.campaign.get_version", func(ctx context.Context) error {
		row := r.db.QueryRowContext(ctx, `
SELECT record_id, version, name, content, created_at
FROM campaign_record_versions
WHERE record_id = $1 AND version = $2
`, id, version)

		var contentRaw []byte
		if err := row.Scan(&entry.RecordID, &entry.Version, &entry.Name, &contentRaw, &entry.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.WrapError(domain.ErrNotFound, "postgres.campaign.get_version",
					fmt.Errorf("record %s version %d", id, version))
			}
			return fmt.Errorf("scan version entry: %w", err)
		}
		if err := json.Unmarshal(contentRaw, &entry.Content); err != nil {
			return fmt.Errorf("unmarshal version content: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *CampaignRepository) List(ctx context.Context, campaignID string, dataType domain.DataType, includeDeleted bool) ([]domain.CampaignRecord, error) {
	query := `
SELECT id, campaign_id, data_type, name, content, version, tags, deleted, created_at, updated_at
FROM campaign_records
WHERE campaign_id = $1
`
	args := []any{campaignID}
	if dataType != "" {
		query += ` AND data_type = $2`
		args = append(args, string(dataType))
	}
	if !includeDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY name, id`

	var out []domain.CampaignRecord
	err := execute(ctx, r.executor, "postgres.campaign.list", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.list", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, *record)
		}
		if err := rows.Err(); err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.list", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CampaignRepository) Update(ctx context.Context, id string, baseVersion int, name string, content map[string]any, tags []string) (*domain.CampaignRecord, error) {
	contentJSON, tagsJSON, err := marshalRecordPayload(content, tags)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var record *domain.CampaignRecord
	err = execute(ctx, r.executor, "postgres.campaign.update", func(ctx context.Context) error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.update", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		row := tx.QueryRowContext(ctx, `
UPDATE campaign_records
SET version = version + 1, name = $3, content = $4, tags = $5, updated_at = $6
WHERE id = $1 AND version = $2 AND NOT deleted
RETURNING id, campaign_id, data_type, name, content, version, tags, deleted, created_at, updated_at
`, id, baseVersion, name, contentJSON, tagsJSON, now)

		record, err = scanRecord(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.classifyUpdateMiss(ctx, tx, id, baseVersion)
			}
			return err
		}

		if err := insertVersionEntry(ctx, tx, id, record.Version, name, contentJSON, now); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.update", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// classifyUpdateMiss distinguishes a stale base version from a missing or
// tombstoned record after a conditional update touched zero rows.
func (r *CampaignRepository) classifyUpdateMiss(ctx context.Context, tx *sql.Tx, id string, baseVersion int) error {
	var current int
	var deleted bool
	err := tx.QueryRowContext(ctx, `SELECT version, deleted FROM campaign_records WHERE id = $1`, id).Scan(&current, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, "postgres.campaign.update", fmt.Errorf("record %s", id))
	}
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.update", err)
	}
	if deleted {
		return domain.WrapError(domain.ErrNotFound, "postgres.campaign.update", fmt.Errorf("record %s is deleted", id))
	}
	return domain.WrapError(domain.ErrConflict, "postgres.campaign.update",
		fmt.Errorf("record %s is at version %d, update based on %d", id, current, baseVersion))
}

func (r *CampaignRepository) SoftDelete(ctx context.Context, id string) error {
	return execute(ctx, r.executor, "postgres.campaign.delete", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE campaign_records
SET deleted = TRUE, updated_at = $2
WHERE id = $1 AND NOT deleted
`, id, time.Now().UTC())
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.delete", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.delete", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrNotFound, "postgres.campaign.delete", fmt.Errorf("record %s", id))
		}
		return nil
	})
}

func (r *CampaignRepository) History(ctx context.Context, id string) ([]domain.VersionEntry, error) {
	var out []domain.VersionEntry
	err := execute(ctx, r.executor, "postgres.campaign.history", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, `
SELECT record_id, version, name, content, created_at
FROM campaign_record_versions
WHERE record_id = $1
ORDER BY version
`, id)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.history", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var entry domain.VersionEntry
			var contentRaw []byte
			if err := rows.Scan(&entry.RecordID, &entry.Version, &entry.Name, &contentRaw, &entry.CreatedAt); err != nil {
				return fmt.Errorf("scan version entry: %w", err)
			}
			if err := json.Unmarshal(contentRaw, &entry.Content); err != nil {
				return fmt.Errorf("unmarshal version content: %w", err)
			}
			out = append(out, entry)
		}
		if err := rows.Err(); err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.history", err)
		}
		if len(out) == 0 {
			return domain.WrapError(domain.ErrNotFound, "postgres.campaign.history", fmt.Errorf("record %s", id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.CampaignRecord, error) {
	var record domain.CampaignRecord
	var dataType string
	var contentRaw, tagsRaw []byte

	err := row.Scan(
		&record.ID, &record.CampaignID, &dataType, &record.Name, &contentRaw,
		&record.Version, &tagsRaw, &record.Deleted, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan campaign record: %w", err)
	}
	record.DataType = domain.DataType(dataType)
	if err := json.Unmarshal(contentRaw, &record.Content); err != nil {
		return nil, fmt.Errorf("unmarshal record content: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &record.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal record tags: %w", err)
	}
	return &record, nil
}

func insertVersionEntry(ctx context.Context, tx *sql.Tx, id string, version int, name string, contentJSON []byte, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO campaign_record_versions (record_id, version, name, content, created_at)
VALUES ($1,$2,$3,$4,$5)
`, id, version, name, contentJSON, at)
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.campaign.version_log", err)
	}
	return nil
}

func marshalRecordPayload(content map[string]any, tags []string) (contentJSON, tagsJSON []byte, err error) {
	if content == nil {
		content = map[string]any{}
	}
	if tags == nil {
		tags = []string{}
	}
	contentJSON, err = json.Marshal(content)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal record content: %w", err)
	}
	tagsJSON, err = json.Marshal(tags)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal record tags: %w", err)
	}
	return contentJSON, tagsJSON, nil
}
