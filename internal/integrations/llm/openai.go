package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jiratriage/internal/httpx"
)

type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI targets Chat Completions. baseURL overrides the public API for
// compatible gateways; empty keeps the SDK default.
func NewOpenAI(apiKey, model, baseURL string, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(append(base, opts...)...), model: model}
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		zap.L().Warn("llm openai error", zap.Error(err))
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, eris.Wrapf(err, "llm: openai status %d", apiErr.StatusCode)
		}
		return Response{}, eris.Wrap(err, "llm: openai chat completion")
	}
	if len(completion.Choices) == 0 {
		return Response{}, eris.New("llm: no choices in openai response")
	}

	usage := Usage{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	text := completion.Choices[0].Message.Content
	zap.L().Info("llm response",
		zap.String("provider", "openai"),
		zap.Int("size", len(text)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
	)
	return Response{Text: text, Usage: usage}, nil
}
