package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hubenschmidt/legalqa/server/store/migrations"
	_ "modernc.org/sqlite"
)

const queryColumns = `id, timestamp, question, answer, retrieved, top_score,
	retrieve_ms, generate_ms, elapsed_ms, status, error`

// SQLiteQueryLog implements QueryLog using SQLite
type SQLiteQueryLog struct {
	db *sql.DB
}

// NewSQLiteQueryLog opens (creating if needed) a SQLite query log
func NewSQLiteQueryLog(dsn string) (*SQLiteQueryLog, error) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}

	dir := filepath.Dir(dsn)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer, avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteQueryLog{db: db}, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	_, err = db.Exec(string(data))
	if err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *SQLiteQueryLog) Add(ctx context.Context, q QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO queries (`+queryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Timestamp, q.Question, q.Answer, q.Retrieved, q.TopScore,
		q.RetrieveMs, q.GenerateMs, q.ElapsedMs, q.Status, q.Error,
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

func (s *SQLiteQueryLog) Get(ctx context.Context, id string) (QueryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, fmt.Errorf("query record: %w", err)
	}
	return q, nil
}

func (s *SQLiteQueryLog) List(ctx context.Context, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queryColumns+`
		FROM queries ORDER BY timestamp DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanQueries(rows)
}

func (s *SQLiteQueryLog) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	return deleted(res)
}

func (s *SQLiteQueryLog) Summary(ctx context.Context) (QuerySummary, error) {
	return querySummary(ctx, s.db)
}

func (s *SQLiteQueryLog) Close() error {
	return s.db.Close()
}

func deleted(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (QueryRecord, error) {
	var q QueryRecord
	err := row.Scan(
		&q.ID, &q.Timestamp, &q.Question, &q.Answer, &q.Retrieved, &q.TopScore,
		&q.RetrieveMs, &q.GenerateMs, &q.ElapsedMs, &q.Status, &q.Error,
	)
	return q, err
}

func scanQueries(rows *sql.Rows) ([]QueryRecord, error) {
	records := []QueryRecord{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		records = append(records, q)
	}
	return records, rows.Err()
}

// querySummary is plain SQL shared by both backends.
func querySummary(ctx context.Context, db *sql.DB) (QuerySummary, error) {
	var m QuerySummary
	err := db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status <> 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(elapsed_ms), 0),
			COALESCE(AVG(retrieve_ms), 0),
			COALESCE(AVG(generate_ms), 0),
			COALESCE(AVG(top_score), 0)
		FROM queries`).Scan(
		&m.TotalQueries, &m.FailedQueries, &m.AvgLatencyMs,
		&m.AvgRetrieveMs, &m.AvgGenerateMs, &m.AvgTopScore,
	)
	if err != nil {
		return m, fmt.Errorf("query summary: %w", err)
	}
	return m, nil
}
