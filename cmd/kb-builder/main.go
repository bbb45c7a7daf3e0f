// Command kb-builder embeds a JSONL knowledge base and writes the index
// artifact the server loads at startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hubenschmidt/legalqa/builder"
	"github.com/hubenschmidt/legalqa/config"
	"github.com/hubenschmidt/legalqa/embedding"
	"github.com/hubenschmidt/legalqa/index"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kb-builder:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "legalqa.yaml", "optional YAML config file")
	kbPath := flag.String("kb", "", "knowledge base JSONL (overrides config)")
	out := flag.String("out", "", "artifact path (overrides config)")
	model := flag.String("model", "", "embedding model id, e.g. ollama/all-minilm (overrides config)")
	publishDSN := flag.String("publish-dsn", "", "also publish vectors to this pgvector database")
	table := flag.String("table", "", "pgvector table name (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	override(&cfg.KBPath, *kbPath)
	override(&cfg.ArtifactPath, *out)
	override(&cfg.Embedding.Model, *model)
	override(&cfg.Index.PgVectorDSN, *publishDSN)
	override(&cfg.Index.Table, *table)

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.EmbeddingOptions()
	opts.Logger = logger
	e, err := embedding.Resolve(cfg.Embedding.Model, opts)
	if err != nil {
		return err
	}

	a, err := builder.New(e, logger).BuildFile(ctx, cfg.KBPath, cfg.ArtifactPath)
	if err != nil {
		return err
	}
	logger.Info("index built",
		zap.String("artifact", cfg.ArtifactPath),
		zap.String("model", a.ModelID),
		zap.Int("documents", len(a.Documents)),
		zap.Int("dim", a.Dim),
	)

	if *publishDSN == "" {
		return nil
	}
	if a.Dim == 0 {
		logger.Warn("nothing to publish, corpus is empty")
		return nil
	}

	pg, err := index.OpenPgVector(ctx, cfg.Index.PgVectorDSN, cfg.Index.Table, a.Dim)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer pg.Close()

	if err := pg.Publish(ctx, a.Vectors); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	logger.Info("published vectors", zap.String("table", cfg.Index.Table), zap.Int("rows", pg.Len()))
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
