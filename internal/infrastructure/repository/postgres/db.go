package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates every table the storage backend needs. DDL runs under
// an advisory lock to serialize concurrent server startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	rulebook TEXT NOT NULL,
	system TEXT NOT NULL,
	content_type TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	section_path JSONB NOT NULL DEFAULT '[]'::jsonb,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	tables JSONB NOT NULL DEFAULT '[]'::jsonb,
	embedding JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_chunks_rulebook ON chunks(rulebook);
CREATE INDEX IF NOT EXISTS idx_chunks_content_type ON chunks(content_type);

CREATE TABLE IF NOT EXISTS campaign_records (
	id TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL,
	data_type TEXT NOT NULL,
	name TEXT NOT NULL,
	content JSONB NOT NULL DEFAULT '{}'::jsonb,
	version INTEGER NOT NULL,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaign_records_campaign ON campaign_records(campaign_id, data_type);

CREATE TABLE IF NOT EXISTS campaign_record_versions (
	record_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	name TEXT NOT NULL,
	content JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (record_id, version)
);

CREATE TABLE IF NOT EXISTS links (
	record_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (record_id, chunk_id)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
