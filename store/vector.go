package store

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// VectorItem is one embedded chunk headed for the index. Page and Content
// travel alongside the vector so matches can be cited without a second
// lookup.
type VectorItem struct {
	ID        string
	Embedding []float32
	Page      int
	Content   string
}

// VectorMatch is one scored result of a similarity query.
type VectorMatch struct {
	ID      string
	Score   float64
	Page    int
	Content string
}

type VectorIndexer interface {
	UpsertVectors(ctx context.Context, namespace string, items []VectorItem) error
	QueryVectors(ctx context.Context, namespace string, embedding []float32, topK int) ([]VectorMatch, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

func (p *PostgresStore) UpsertVectors(ctx context.Context, namespace string, items []VectorItem) error {
	query := `INSERT INTO chunk_vectors (vector_id, namespace, embedding, page, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vector_id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			embedding = EXCLUDED.embedding,
			page = EXCLUDED.page,
			content = EXCLUDED.content
			`
	for _, item := range items {
		_, err := p.pool.Exec(ctx, query,
			item.ID, namespace, pgvector.NewVector(item.Embedding), item.Page, item.Content,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// QueryVectors returns the topK nearest vectors by cosine similarity.
// An empty namespace searches the whole index.
func (p *PostgresStore) QueryVectors(ctx context.Context, namespace string, embedding []float32, topK int) ([]VectorMatch, error) {
	query := `
		SELECT vector_id, 1-(embedding <=> $1) AS score, page, content
		FROM chunk_vectors
		WHERE $2 = '' OR namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(embedding), namespace, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var m VectorMatch
		if err := rows.Scan(&m.ID, &m.Score, &m.Page, &m.Content); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PostgresStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE namespace = $1", namespace)
	return err
}

func (p *PostgresStore) createVectorTables(ctx context.Context) error {
	query := `
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS chunk_vectors (
        vector_id TEXT PRIMARY KEY,
        namespace TEXT NOT NULL DEFAULT '',
        embedding vector(1536),
        page INT NOT NULL DEFAULT 0,
        content TEXT NOT NULL
    );

	CREATE INDEX IF NOT EXISTS idx_chunk_vectors_embedding ON chunk_vectors USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunk_vectors_namespace ON chunk_vectors(namespace);
    `
	_, err := p.pool.Exec(ctx, query)
	return err
}
