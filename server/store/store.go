package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity is not found
var ErrNotFound = errors.New("not found")

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// QueryRecord is one answered (or failed) /ask request
type QueryRecord struct {
	ID         string  `json:"id"`
	Timestamp  int64   `json:"timestamp"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Retrieved  int     `json:"retrieved"`
	TopScore   float64 `json:"top_score"`
	RetrieveMs int64   `json:"retrieve_ms"`
	GenerateMs int64   `json:"generate_ms"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// QuerySummary aggregates the query log
type QuerySummary struct {
	TotalQueries  int     `json:"total_queries"`
	FailedQueries int     `json:"failed_queries"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgRetrieveMs float64 `json:"avg_retrieve_ms"`
	AvgGenerateMs float64 `json:"avg_generate_ms"`
	AvgTopScore   float64 `json:"avg_top_score"`
}

// QueryLog persists question/answer history
type QueryLog interface {
	Add(ctx context.Context, q QueryRecord) error
	Get(ctx context.Context, id string) (QueryRecord, error)
	// List returns the newest records first; limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]QueryRecord, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) (QuerySummary, error)
	Close() error
}
