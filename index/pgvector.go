package index

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PgVector keeps the vectors in a PostgreSQL table using the pgvector
// extension and searches with the <-> (L2) operator. Rows are keyed by
// ordinal so hits map straight back to documents.
type PgVector struct {
	db    *sql.DB
	table string
	dim   int
	count atomic.Int64
}

// OpenPgVector connects to dsn through pgx and prepares table.
func OpenPgVector(ctx context.Context, dsn, table string, dim int) (*PgVector, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p, err := NewPgVector(db, table, dim)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := p.Refresh(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPgVector wraps an open database. It does not touch the schema.
func NewPgVector(db *sql.DB, table string, dim int) (*PgVector, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("pgvector index needs a positive dimension, got %d", dim)
	}
	return &PgVector{db: db, table: table, dim: dim}, nil
}

func (p *PgVector) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ordinal INTEGER PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, p.table, p.dim),
	}

	for _, m := range migrations {
		if _, err := p.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Refresh re-reads the row count used by Len.
func (p *PgVector) Refresh(ctx context.Context) error {
	var n int64
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}
	p.count.Store(n)
	return nil
}

// Publish replaces the table contents with vectors in one transaction.
func (p *PgVector) Publish(ctx context.Context, vectors [][]float32) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, p.table)); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (ordinal, embedding) VALUES ($1, $2)`, p.table)
	for i, v := range vectors {
		if len(v) != p.dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), p.dim)
		}
		if _, err := tx.ExecContext(ctx, insert, i, formatEmbedding(v)); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.count.Store(int64(len(vectors)))
	return nil
}

func (p *PgVector) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if k <= 0 || p.Len() == 0 {
		return []Neighbor{}, nil
	}
	if len(query) != p.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), p.dim)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ordinal, embedding <-> $1 AS distance
		FROM %s
		ORDER BY distance, ordinal
		LIMIT $2`, p.table), formatEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	results := []Neighbor{}
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Ordinal, &n.Distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

func (p *PgVector) Len() int { return int(p.count.Load()) }

func (p *PgVector) Dim() int { return p.dim }

func (p *PgVector) Close() error {
	return p.db.Close()
}

// formatEmbedding renders a vector in pgvector text form: "[0.1,0.2,0.3]".
func formatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
