// Package config loads legalqa settings from an optional YAML file, then
// the environment (after .env), in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/legalqa/answer"
	"github.com/hubenschmidt/legalqa/embedding"
	"github.com/hubenschmidt/legalqa/retriever"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	IndexBackendFlat     = "flat"
	IndexBackendPgVector = "pgvector"
)

type Config struct {
	KBPath       string          `yaml:"kb_path"`
	ArtifactPath string          `yaml:"artifact_path"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	Answer       AnswerConfig    `yaml:"answer"`
	Index        IndexConfig     `yaml:"index"`
	Server       ServerConfig    `yaml:"server"`
	Log          LogConfig       `yaml:"log"`
}

type EmbeddingConfig struct {
	Model         string        `yaml:"model"`
	OpenAIKey     string        `yaml:"-"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OllamaURL     string        `yaml:"ollama_url"`
	BatchSize     int           `yaml:"batch_size"`
	Concurrency   int           `yaml:"concurrency"`
	Timeout       time.Duration `yaml:"timeout"`
}

type AnswerConfig struct {
	APIKey          string        `yaml:"-"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	TopK            int           `yaml:"top_k"`
	ContextMaxChars int           `yaml:"context_max_chars"`
}

type IndexConfig struct {
	Backend     string `yaml:"backend"`
	PgVectorDSN string `yaml:"-"`
	Table       string `yaml:"table"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	DatabaseDSN     string        `yaml:"-"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		KBPath:       "legal_kb.jsonl",
		ArtifactPath: "data/kb_index.db",
		Embedding: EmbeddingConfig{
			Model:       embedding.DefaultModel,
			OllamaURL:   "http://localhost:11434",
			BatchSize:   32,
			Concurrency: 4,
			Timeout:     60 * time.Second,
		},
		Answer: AnswerConfig{
			BaseURL:         answer.DefaultBaseURL,
			Model:           answer.DefaultModel,
			Timeout:         60 * time.Second,
			TopK:            retriever.DefaultK,
			ContextMaxChars: answer.DefaultContextChars,
		},
		Index: IndexConfig{
			Backend: IndexBackendFlat,
			Table:   "kb_vectors",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			RequestTimeout:  90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env, then the YAML file at path (skipped when path is empty
// or the file does not exist), then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.KBPath = getEnv("KB_PATH", cfg.KBPath)
	cfg.ArtifactPath = getEnv("ARTIFACT_PATH", cfg.ArtifactPath)

	cfg.Embedding.Model = getEnv("EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.OpenAIKey)
	cfg.Embedding.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.OpenAIBaseURL)
	cfg.Embedding.OllamaURL = getEnv("OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.BatchSize = getEnvAsInt("EMBED_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Concurrency = getEnvAsInt("EMBED_CONCURRENCY", cfg.Embedding.Concurrency)
	cfg.Embedding.Timeout = getEnvAsDuration("EMBED_TIMEOUT", cfg.Embedding.Timeout)

	cfg.Answer.APIKey = getEnv("GEMINI_API_KEY", cfg.Answer.APIKey)
	cfg.Answer.BaseURL = getEnv("ANSWER_BASE_URL", cfg.Answer.BaseURL)
	cfg.Answer.Model = getEnv("ANSWER_MODEL", cfg.Answer.Model)
	cfg.Answer.Timeout = getEnvAsDuration("ANSWER_TIMEOUT", cfg.Answer.Timeout)
	cfg.Answer.TopK = getEnvAsInt("TOP_K", cfg.Answer.TopK)
	cfg.Answer.ContextMaxChars = getEnvAsInt("CONTEXT_MAX_CHARS", cfg.Answer.ContextMaxChars)

	cfg.Index.Backend = strings.ToLower(getEnv("INDEX_BACKEND", cfg.Index.Backend))
	cfg.Index.PgVectorDSN = getEnv("PGVECTOR_DSN", cfg.Index.PgVectorDSN)
	cfg.Index.Table = getEnv("PGVECTOR_TABLE", cfg.Index.Table)

	cfg.Server.Addr = getEnv("ADDR", cfg.Server.Addr)
	cfg.Server.DatabaseDSN = getEnv("DATABASE_DSN", cfg.Server.DatabaseDSN)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	cfg.Server.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Validate checks settings that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.ArtifactPath == "" {
		return fmt.Errorf("artifact path is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}
	if c.Answer.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	switch c.Index.Backend {
	case IndexBackendFlat:
	case IndexBackendPgVector:
		if c.Index.PgVectorDSN == "" {
			return fmt.Errorf("index backend %q requires PGVECTOR_DSN", c.Index.Backend)
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	return nil
}

// EmbeddingOptions maps the embedding settings onto embedding.Options.
func (c *Config) EmbeddingOptions() embedding.Options {
	return embedding.Options{
		OpenAIKey:     c.Embedding.OpenAIKey,
		OpenAIBaseURL: c.Embedding.OpenAIBaseURL,
		OllamaURL:     c.Embedding.OllamaURL,
		BatchSize:     c.Embedding.BatchSize,
		Concurrency:   c.Embedding.Concurrency,
		Timeout:       c.Embedding.Timeout,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
