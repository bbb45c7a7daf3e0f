package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hubenschmidt/legalqa/answer"
	"github.com/hubenschmidt/legalqa/retriever"
	"github.com/hubenschmidt/legalqa/server/store"
	"go.uber.org/zap"
)

// Searcher is the retrieval surface the HTTP layer needs.
type Searcher interface {
	GetRelevantDocuments(ctx context.Context, query string, k int) ([]retriever.ScoredResult, error)
	Len() int
	ModelID() string
	Dim() int
}

// Config configures a new Server instance.
type Config struct {
	Retriever       Searcher
	Generator       answer.Generator
	QueryLog        store.QueryLog // Optional: when nil, /ask history is not kept
	Logger          *zap.Logger
	TopK            int
	ContextMaxChars int
	CORSOrigins     []string
	RequestTimeout  time.Duration
}

// Server is the HTTP front of the legal question answering service.
type Server struct {
	retriever       Searcher
	generator       answer.Generator
	queries         store.QueryLog
	logger          *zap.Logger
	topK            int
	contextMaxChars int
	corsOrigins     []string
	requestTimeout  time.Duration
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("server: retriever is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("server: generator is required")
	}

	s := &Server{
		retriever:       cfg.Retriever,
		generator:       cfg.Generator,
		queries:         cfg.QueryLog,
		logger:          cfg.Logger,
		topK:            cfg.TopK,
		contextMaxChars: cfg.ContextMaxChars,
		corsOrigins:     cfg.CORSOrigins,
		requestTimeout:  cfg.RequestTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.topK <= 0 {
		s.topK = retriever.DefaultK
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 90 * time.Second
	}
	return s, nil
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/index", s.handleIndexInfo)
	r.Post("/ask", s.handleAsk)
	r.Post("/search", s.handleSearch)

	r.Route("/queries", func(r chi.Router) {
		r.Get("/", s.handleListQueries)
		r.Get("/summary", s.handleQuerySummary)
		r.Get("/{id}", s.handleGetQuery)
		r.Delete("/{id}", s.handleDeleteQuery)
	})

	return r
}

// Close releases the query log.
func (s *Server) Close() error {
	if s.queries == nil {
		return nil
	}
	return s.queries.Close()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
