package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

type pgvectorConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// pgvectorStore keeps index records in a single Postgres table with a
// pgvector embedding column. Cosine similarity is 1 - (a <=> b).
type pgvectorStore struct {
	db    *sql.DB
	table string
}

func init() {
	Register("pgvector", createPgvectorStore)
}

func createPgvectorStore(args interface{}) (Store, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	if cfg.Table == "" {
		cfg.Table = "chunk_index"
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &pgvectorStore{db: db, table: cfg.Table}, nil
}

// Init creates the extension and table. The embedding column dimension is
// fixed at creation; changing it requires a new table.
func (s *pgvectorStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", appErr.ErrVectorStore, dimension)
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			content text NOT NULL,
			title text NOT NULL DEFAULT '',
			created_at bigint NOT NULL,
			concepts jsonb
		)`, s.table, dimension),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init table: %v", appErr.ErrVectorStore, err)
		}
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, content, title, created_at, concepts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content = EXCLUDED.content,
			title = EXCLUDED.title,
			created_at = EXCLUDED.created_at,
			concepts = EXCLUDED.concepts
	`, s.table)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert: %v", appErr.ErrVectorStore, err)
	}
	defer tx.Rollback()
	for _, rec := range records {
		var concepts interface{}
		if len(rec.Payload.Concepts) > 0 {
			blob, err := json.Marshal(rec.Payload.Concepts)
			if err != nil {
				return fmt.Errorf("%w: encode concepts: %v", appErr.ErrVectorStore, err)
			}
			concepts = blob
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.ID,
			pgvector.NewVector(rec.Vector),
			rec.Payload.Content,
			rec.Payload.Title,
			rec.Payload.CreatedAt,
			concepts,
		); err != nil {
			return fmt.Errorf("%w: upsert record %s: %v", appErr.ErrVectorStore, rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert: %v", appErr.ErrVectorStore, err)
	}
	return nil
}

// Search runs a cosine nearest-neighbor scan. The concept soft filter is a
// no-op on this backend: cosine ordering already includes every candidate,
// and the retriever applies its own concept boost.
func (s *pgvectorStore) Search(ctx context.Context, params SearchParams) ([]model.SearchResult, error) {
	columns := "id, content, title, created_at, concepts, 1 - (embedding <=> $1) AS score"
	if params.WithVectors {
		columns += ", embedding"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY embedding <=> $1 LIMIT $2`, columns, s.table)
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(params.Vector), params.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", appErr.ErrVectorStore, err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var (
			item     model.SearchResult
			concepts []byte
			vec      pgvector.Vector
		)
		dests := []interface{}{&item.ID, &item.Payload.Content, &item.Payload.Title, &item.Payload.CreatedAt, &concepts, &item.Score}
		if params.WithVectors {
			dests = append(dests, &vec)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", appErr.ErrVectorStore, err)
		}
		if len(concepts) > 0 {
			if err := json.Unmarshal(concepts, &item.Payload.Concepts); err != nil {
				return nil, fmt.Errorf("%w: decode concepts: %v", appErr.ErrVectorStore, err)
			}
		}
		if params.WithVectors {
			item.Vector = vec.Slice()
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %v", appErr.ErrVectorStore, err)
	}
	return results, nil
}
