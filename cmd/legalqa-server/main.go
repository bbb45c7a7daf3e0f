// Command legalqa-server serves retrieval and answer generation over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hubenschmidt/legalqa/answer"
	"github.com/hubenschmidt/legalqa/artifact"
	"github.com/hubenschmidt/legalqa/config"
	"github.com/hubenschmidt/legalqa/embedding"
	"github.com/hubenschmidt/legalqa/index"
	"github.com/hubenschmidt/legalqa/retriever"
	"github.com/hubenschmidt/legalqa/server"
	"github.com/hubenschmidt/legalqa/server/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "legalqa.yaml", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "legalqa-server:", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "legalqa-server:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, closeIndex, err := loadRetriever(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	gen, err := answer.NewOpenAIGenerator(answer.Config{
		APIKey:  cfg.Answer.APIKey,
		BaseURL: cfg.Answer.BaseURL,
		Model:   cfg.Answer.Model,
		Timeout: cfg.Answer.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("%w (set GEMINI_API_KEY)", err)
	}

	queries, err := store.NewQueryLog(cfg.Server.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open query log: %w", err)
	}

	srv, err := server.New(server.Config{
		Retriever:       r,
		Generator:       gen,
		QueryLog:        queries,
		Logger:          logger,
		TopK:            cfg.Answer.TopK,
		ContextMaxChars: cfg.Answer.ContextMaxChars,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})
	if err != nil {
		queries.Close()
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadRetriever loads the artifact with the embedder it was built with and,
// for the pgvector backend, points search at the published table.
func loadRetriever(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*retriever.Retriever, func(), error) {
	opts := cfg.EmbeddingOptions()
	opts.Logger = logger

	var pg *index.PgVector
	closeIndex := func() {
		if pg != nil {
			pg.Close()
		}
	}

	ropts := []retriever.Option{retriever.WithLogger(logger)}
	if cfg.Index.Backend == config.IndexBackendPgVector {
		ropts = append(ropts, retriever.WithIndexFunc(func(a *artifact.Artifact) (index.Index, error) {
			if a.Dim == 0 {
				return a.Index()
			}
			var err error
			pg, err = index.OpenPgVector(ctx, cfg.Index.PgVectorDSN, cfg.Index.Table, a.Dim)
			if err != nil {
				return nil, err
			}
			return pg, nil
		}))
	}

	r, err := retriever.Load(ctx, cfg.ArtifactPath, embedding.Resolver(opts), ropts...)
	if err != nil {
		closeIndex()
		return nil, func() {}, err
	}
	return r, closeIndex, nil
}
