package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hubenschmidt/legalqa/answer"
	"github.com/hubenschmidt/legalqa/core"
	"github.com/hubenschmidt/legalqa/monitor"
	"github.com/hubenschmidt/legalqa/retriever"
	"github.com/hubenschmidt/legalqa/server/store"
	"go.uber.org/zap"
)

const rootMessage = "Legal QA API is running."

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Message: rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func (s *Server) handleIndexInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IndexInfo{
		Documents: s.retriever.Len(),
		ModelID:   s.retriever.ModelID(),
		Dim:       s.retriever.Dim(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeAndValidate(r, &req, func() { req.Query = strings.TrimSpace(req.Query) }); err != nil {
		writeFailure(w, err)
		return
	}

	k := req.K
	if k == 0 {
		k = s.topK
	}
	results, err := s.retriever.GetRelevantDocuments(r.Context(), req.Query, k)
	if err != nil {
		s.logger.Warn("search failed", zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: nonNil(results)})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeAndValidate(r, &req, func() { req.Question = strings.TrimSpace(req.Question) }); err != nil {
		writeFailure(w, err)
		return
	}

	ctx := r.Context()
	collector := s.newCollector(middleware.GetReqID(ctx))

	var (
		docs []retriever.ScoredResult
		text string
	)
	err := monitor.Track(collector, monitor.StageRetrieve, func() (int, error) {
		var err error
		docs, err = s.retriever.GetRelevantDocuments(ctx, req.Question, s.topK)
		return len(docs), err
	})
	if err == nil {
		passages := answer.BuildContext(docs, s.contextMaxChars)
		err = monitor.Track(collector, monitor.StageGenerate, func() (int, error) {
			var err error
			text, err = s.generator.Generate(ctx, answer.SystemInstructions, passages, req.Question)
			return len(text), err
		})
	}

	s.recordQuery(ctx, req.Question, text, docs, collector.Flush(), err)

	if err != nil {
		s.logger.Warn("ask failed", zap.String("question", req.Question), zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Question: req.Question, Answer: text, Sources: nonNil(docs)})
}

// newCollector times /ask stages only when there is a query log to keep them.
func (s *Server) newCollector(requestID string) monitor.MetricsCollector {
	if s.queries == nil {
		return monitor.NewNoOpCollector()
	}
	return monitor.NewInMemoryCollector(requestID)
}

// recordQuery appends the exchange to the query log. Failures here never
// fail the request.
func (s *Server) recordQuery(ctx context.Context, question, text string, docs []retriever.ScoredResult, m monitor.RequestMetrics, askErr error) {
	if s.queries == nil {
		return
	}

	rec := store.QueryRecord{
		ID:         uuid.NewString(),
		Timestamp:  m.StartTime.UnixMilli(),
		Question:   question,
		Answer:     text,
		Retrieved:  len(docs),
		RetrieveMs: m.StageMs(monitor.StageRetrieve),
		GenerateMs: m.StageMs(monitor.StageGenerate),
		ElapsedMs:  m.TotalDuration.Milliseconds(),
		Status:     store.StatusOK,
	}
	if len(docs) > 0 {
		rec.TopScore = docs[0].Score
	}
	if askErr != nil {
		rec.Status = store.StatusError
		rec.Error = askErr.Error()
	}

	// the request context may already be cancelled
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.queries.Add(logCtx, rec); err != nil {
		s.logger.Warn("record query failed", zap.String("id", rec.ID), zap.Error(err))
	}
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueryLog(w) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeFailure(w, core.NewOpError("list queries", core.ErrInvalidQuery, fmt.Errorf("limit must be a non-negative integer")))
			return
		}
		limit = n
	}

	queries, err := s.queries.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	if queries == nil {
		queries = []store.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleQuerySummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueryLog(w) {
		return
	}
	summary, err := s.queries.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueryLog(w) {
		return
	}
	q, err := s.queries.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "query not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueryLog(w) {
		return
	}
	err := s.queries.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "query not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireQueryLog(w http.ResponseWriter) bool {
	if s.queries != nil {
		return true
	}
	writeError(w, http.StatusNotFound, "not_found", "query log is disabled", nil)
	return false
}

func nonNil(results []retriever.ScoredResult) []retriever.ScoredResult {
	if results == nil {
		return []retriever.ScoredResult{}
	}
	return results
}
