// Package answer turns retrieved passages and a question into a Markdown
// answer from a remote chat model.
package answer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.5-flash"
)

// Generator produces an answer from system instructions, retrieved context
// and the user's question.
type Generator interface {
	Generate(ctx context.Context, system, passages, question string) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
// The defaults point at Gemini's compatibility layer.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, core.NewOpError("create generator", core.ErrGeneration, fmt.Errorf("missing API key"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, passages, question string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(passages, question)},
		},
	})
	if err != nil {
		return "", core.NewOpError("generate answer", core.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewOpError("generate answer", core.ErrGeneration, fmt.Errorf("no choices returned"))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", core.NewOpError("generate answer", core.ErrGeneration, fmt.Errorf("empty answer"))
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}
