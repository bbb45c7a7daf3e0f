package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hubenschmidt/legalqa/server/store/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresQueryLog implements QueryLog using PostgreSQL
type PostgresQueryLog struct {
	db *sql.DB
}

// NewPostgresQueryLog connects through pgx and migrates the schema
func NewPostgresQueryLog(dsn string) (*PostgresQueryLog, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	ql, err := newPostgresQueryLog(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ql, nil
}

func newPostgresQueryLog(ctx context.Context, db *sql.DB) (*PostgresQueryLog, error) {
	data, err := migrations.Postgres.ReadFile("postgres/001_init.sql")
	if err != nil {
		return nil, fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(data)); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresQueryLog{db: db}, nil
}

func (s *PostgresQueryLog) Add(ctx context.Context, q QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (`+queryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			question = EXCLUDED.question,
			answer = EXCLUDED.answer,
			retrieved = EXCLUDED.retrieved,
			top_score = EXCLUDED.top_score,
			retrieve_ms = EXCLUDED.retrieve_ms,
			generate_ms = EXCLUDED.generate_ms,
			elapsed_ms = EXCLUDED.elapsed_ms,
			status = EXCLUDED.status,
			error = EXCLUDED.error`,
		q.ID, q.Timestamp, q.Question, q.Answer, q.Retrieved, q.TopScore,
		q.RetrieveMs, q.GenerateMs, q.ElapsedMs, q.Status, q.Error,
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

func (s *PostgresQueryLog) Get(ctx context.Context, id string) (QueryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = $1`, id)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, fmt.Errorf("query record: %w", err)
	}
	return q, nil
}

func (s *PostgresQueryLog) List(ctx context.Context, limit int) ([]QueryRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queryColumns+`
		FROM queries ORDER BY timestamp DESC, id LIMIT $1`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanQueries(rows)
}

func (s *PostgresQueryLog) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	return deleted(res)
}

func (s *PostgresQueryLog) Summary(ctx context.Context) (QuerySummary, error) {
	return querySummary(ctx, s.db)
}

func (s *PostgresQueryLog) Close() error {
	return s.db.Close()
}
