// Package llm sends ticket chunks to a model and returns the raw reply.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"jiratriage/internal/config"
)

const (
	defaultGeminiModel    = "gemini-2.5-pro"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
)

type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

type Response struct {
	Text  string
	Usage Usage
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Provider is a single-turn text generation backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// NewProvider builds the provider named by cfg.LLMProvider. The API key for
// that provider must be set.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case "gemini", "":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, eris.New("llm: gemini_api_key is required (GEMINI_API_KEY)")
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, modelOrDefault(cfg.LLMModel, defaultGeminiModel))
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, eris.New("llm: anthropic_api_key is required (ANTHROPIC_API_KEY)")
		}
		return NewAnthropic(cfg.AnthropicAPIKey, modelOrDefault(cfg.LLMModel, defaultAnthropicModel)), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, eris.New("llm: openai_api_key is required (OPENAI_API_KEY)")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, modelOrDefault(cfg.LLMModel, defaultOpenAIModel), cfg.OpenAIBaseURL), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLMProvider)
	}
}

func modelOrDefault(model, fallback string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return fallback
}
