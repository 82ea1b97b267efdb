package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
}

func TestClientEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Model != "nomic-embed-text" {
			t.Errorf("unexpected model %s", payload.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text", testExecutor())
	vectors, err := client.EmbedBatch(context.Background(), []string{"fireball", "torch"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][1] != 0.2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestClientEmbedRetriesTransientStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1}}})
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text", testExecutor())
	vector, err := client.Embed(context.Background(), "fireball")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if len(vector) != 1 {
		t.Fatalf("unexpected vector: %v", vector)
	}
}

func TestClientEmbedWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "still down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text", testExecutor())
	_, err := client.Embed(context.Background(), "fireball")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestClientEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "bad-model", testExecutor())
	_, err := client.Embed(context.Background(), "fireball")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got temporary: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call for a client error, got %d", calls)
	}
}

func TestClientEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1}}})
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text", nil)
	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected count mismatch error")
	}
}
