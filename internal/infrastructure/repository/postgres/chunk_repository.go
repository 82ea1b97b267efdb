package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

// ChunkRepository persists indexed fragments with their embedding so the
// in-process index can be rebuilt at startup.
type ChunkRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewChunkRepository(db *sql.DB, executor *resilience.Executor) *ChunkRepository {
	return &ChunkRepository{db: db, executor: executor}
}

func (r *ChunkRepository) Save(ctx context.Context, chunk domain.ContentChunk, embedding []float32) error {
	sectionJSON, err := json.Marshal(chunk.SectionPath)
	if err != nil {
		return fmt.Errorf("marshal section path: %w", err)
	}
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tablesJSON, err := json.Marshal(chunk.Tables)
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	err = execute(ctx, r.executor, "postgres.chunk.save", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO chunks (
	id, rulebook, system, content_type, title, content, page_number, section_path, metadata, tables, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	rulebook = EXCLUDED.rulebook,
	system = EXCLUDED.system,
	content_type = EXCLUDED.content_type,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	page_number = EXCLUDED.page_number,
	section_path = EXCLUDED.section_path,
	metadata = EXCLUDED.metadata,
	tables = EXCLUDED.tables,
	embedding = EXCLUDED.embedding
`,
			chunk.ID, chunk.Rulebook, chunk.System, string(chunk.ContentType), chunk.Title, chunk.Content,
			chunk.PageNumber, sectionJSON, metadataJSON, tablesJSON, embeddingJSON,
		)
		return err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.chunk.save", err)
	}
	return nil
}

func (r *ChunkRepository) LoadAll(ctx context.Context, fn func(chunk domain.ContentChunk, embedding []float32) error) error {
	var rows *sql.Rows
	err := execute(ctx, r.executor, "postgres.chunk.load_all", func(ctx context.Context) error {
		var err error
		rows, err = r.db.QueryContext(ctx, `
SELECT id, rulebook, system, content_type, title, content, page_number, section_path, metadata, tables, embedding
FROM chunks
ORDER BY id
`)
		return err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.chunk.load_all", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk domain.ContentChunk
		var contentType string
		var sectionRaw, metadataRaw, tablesRaw, embeddingRaw []byte

		if err := rows.Scan(
			&chunk.ID, &chunk.Rulebook, &chunk.System, &contentType, &chunk.Title, &chunk.Content,
			&chunk.PageNumber, &sectionRaw, &metadataRaw, &tablesRaw, &embeddingRaw,
		); err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		chunk.ContentType = domain.ContentType(contentType)
		if err := json.Unmarshal(sectionRaw, &chunk.SectionPath); err != nil {
			return fmt.Errorf("unmarshal section path: %w", err)
		}
		if err := json.Unmarshal(metadataRaw, &chunk.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
		if err := json.Unmarshal(tablesRaw, &chunk.Tables); err != nil {
			return fmt.Errorf("unmarshal tables: %w", err)
		}
		var embedding []float32
		if err := json.Unmarshal(embeddingRaw, &embedding); err != nil {
			return fmt.Errorf("unmarshal embedding: %w", err)
		}
		if err := fn(chunk, embedding); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "postgres.chunk.load_all", err)
	}
	return nil
}
