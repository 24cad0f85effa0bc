// Package postgres implements the note store on PostgreSQL with pgvector.
//
// Notes live in a single table with an HNSW index over the embedding column
// for approximate nearest-neighbour recall. The schema is created on first
// connect; the embedding dimensionality is fixed by the configured
// embeddings model, and rows are tagged with the model ID so an index built
// with one model is never searched with vectors from another.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/harkvoice/hark/internal/notes"
	"github.com/harkvoice/hark/pkg/provider/embeddings"
)

// Store is the pgvector-backed note store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
	emb  embeddings.Provider
}

// New connects to dsn, ensures the schema, and returns a Store.
func New(ctx context.Context, dsn string, emb embeddings.Provider) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("note store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("note store: ping: %w", err)
	}

	s := &Store{pool: pool, emb: emb}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping probes database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// schemaStatements returns the DDL run on first connect. dim is the
// embedding dimensionality of the configured model.
func schemaStatements(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS notes (
			    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			    text       TEXT NOT NULL,
			    model      TEXT NOT NULL,
			    embedding  vector(%d) NOT NULL,
			    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, dim),
		`CREATE INDEX IF NOT EXISTS notes_embedding_idx
		    ON notes USING hnsw (embedding vector_cosine_ops)`,
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, q := range schemaStatements(s.emb.Dimensions()) {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("note store: schema: %w", err)
		}
	}
	return nil
}

// Save implements [notes.Store].
func (s *Store) Save(ctx context.Context, text string) error {
	vec, err := s.emb.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("note store: embed: %w", err)
	}

	const q = `INSERT INTO notes (text, model, embedding) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, q, text, s.emb.ModelID(), pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("note store: save: %w", err)
	}
	return nil
}

// Search implements [notes.Store]. Results are ordered by ascending cosine
// distance (most similar first), restricted to rows embedded with the
// current model.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]notes.Result, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("note store: embed query: %w", err)
	}

	const q = `
		SELECT id, text, created_at, embedding <=> $1 AS distance
		FROM   notes
		WHERE  model = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), s.emb.ModelID(), topK)
	if err != nil {
		return nil, fmt.Errorf("note store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notes.Result, error) {
		var r notes.Result
		err := row.Scan(&r.ID, &r.Text, &r.CreatedAt, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("note store: collect: %w", err)
	}
	return results, nil
}

// Recall implements [notes.Store].
func (s *Store) Recall(ctx context.Context, query string, topK int) ([]string, error) {
	results, err := s.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// Ensure Store implements notes.Store at compile time.
var _ notes.Store = (*Store)(nil)
