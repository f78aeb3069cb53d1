package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/rectify/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS knowledge_sources (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	excerpt TEXT NOT NULL,
	full_text TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRepository stores sources in PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres backend requires knowledge.postgres_url")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// List returns all sources ordered by ID
func (r *PostgresRepository) List(ctx context.Context) ([]model.KnowledgeSource, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, excerpt, full_text FROM knowledge_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []model.KnowledgeSource
	for rows.Next() {
		var src model.KnowledgeSource
		if err := rows.Scan(&src.ID, &src.Title, &src.Excerpt, &src.FullText); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// Upsert inserts or replaces sources in one batch
func (r *PostgresRepository) Upsert(ctx context.Context, sources ...model.KnowledgeSource) error {
	prepared, err := prepare(sources)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, src := range prepared {
		batch.Queue(`
			INSERT INTO knowledge_sources (id, title, excerpt, full_text, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				excerpt = EXCLUDED.excerpt,
				full_text = EXCLUDED.full_text,
				updated_at = now()`,
			src.ID, src.Title, src.Excerpt, src.FullText)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, src := range prepared {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert source %s: %w", src.ID, err)
		}
	}
	return nil
}

// Delete removes a source by ID
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM knowledge_sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
