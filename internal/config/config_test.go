package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SEARCH_SIMILARITY_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "memory" {
		t.Fatalf("expected default memory backend, got %q", cfg.StorageBackend)
	}
	if cfg.SearchSimilarityThreshold != 0.7 {
		t.Fatalf("expected default threshold 0.7, got %v", cfg.SearchSimilarityThreshold)
	}
	if !cfg.SearchKeywordFallback {
		t.Fatalf("expected keyword fallback on by default")
	}
	if cfg.IngestDuplicatePolicy != "error" {
		t.Fatalf("expected default duplicate policy error, got %q", cfg.IngestDuplicatePolicy)
	}
}

func TestLoadYAMLFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("storage_backend: postgres\nsearch_max_results: 9\nembedding_dim: 384\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_MAX_RESULTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "postgres" {
		t.Fatalf("expected backend from file, got %q", cfg.StorageBackend)
	}
	if cfg.EmbeddingDim != 384 {
		t.Fatalf("expected dimension from file, got %d", cfg.EmbeddingDim)
	}
	if cfg.SearchMaxResults != 3 {
		t.Fatalf("expected env to override file, got %d", cfg.SearchMaxResults)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "cassandra")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadIndexBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("QDRANT_COLLECTION", "rules_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IndexBackend != "qdrant" || cfg.QdrantCollection != "rules_test" {
		t.Fatalf("index backend not applied: %q %q", cfg.IndexBackend, cfg.QdrantCollection)
	}

	t.Setenv("INDEX_BACKEND", "elasticsearch")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown index backend")
	}
}

func TestLoadRejectsPostgresLinkerWithoutPostgresStorage(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LINKER_BACKEND", "postgres")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for mismatched backends")
	}
}
