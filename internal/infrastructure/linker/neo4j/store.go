package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/grimlore/loremaster/internal/core/domain"
)

// Store keeps record-to-chunk cross-references as a weighted relationship
// graph. Linking an existing pair merges onto the relationship and
// overwrites its weight.
type Store struct {
	driver neo4j.DriverWithContext
}

func New(ctx context.Context, uri, username, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Link(ctx context.Context, recordID, chunkID string, weight float64) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MERGE (r:Record {id: $recordID})
MERGE (c:Chunk {id: $chunkID})
MERGE (r)-[l:REFERENCES]->(c)
SET l.weight = $weight
`, map[string]any{"recordID": recordID, "chunkID": chunkID, "weight": weight})
		return nil, err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "neo4j.link", err)
	}
	return nil
}

func (s *Store) Unlink(ctx context.Context, recordID, chunkID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MATCH (r:Record {id: $recordID})-[l:REFERENCES]->(c:Chunk {id: $chunkID})
DELETE l
`, map[string]any{"recordID": recordID, "chunkID": chunkID})
		return nil, err
	})
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "neo4j.unlink", err)
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, recordID string) ([]domain.CrossReference, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	refs, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
MATCH (r:Record {id: $recordID})-[l:REFERENCES]->(c:Chunk)
RETURN c.id AS chunk_id, l.weight AS weight
ORDER BY l.weight DESC, c.id
`, map[string]any{"recordID": recordID})
		if err != nil {
			return nil, err
		}

		var out []domain.CrossReference
		for result.Next(ctx) {
			record := result.Record()
			chunkID, _ := record.Get("chunk_id")
			weight, _ := record.Get("weight")
			id, ok := chunkID.(string)
			if !ok {
				continue
			}
			w, ok := weight.(float64)
			if !ok {
				continue
			}
			out = append(out, domain.CrossReference{RecordID: recordID, ChunkID: id, Weight: w})
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "neo4j.resolve", err)
	}
	return refs.([]domain.CrossReference), nil
}
