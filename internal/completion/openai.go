package completion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAICompleter calls an OpenAI-compatible /chat/completions endpoint with
// temperature 0.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Option configures an OpenAICompleter.
type Option func(*OpenAICompleter)

// WithLogger sets a logger for request-level debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *OpenAICompleter) { c.logger = l }
}

// NewOpenAICompleter creates a completer for model.
func NewOpenAICompleter(provider *config.ProviderConfig, model string, opts ...Option) (*OpenAICompleter, error) {
	key := provider.APIKey()
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", provider.APIKeyEnv)
	}
	c := openai.DefaultConfig(key)
	if provider.BaseURL != "" {
		c.BaseURL = provider.BaseURL
	}
	c.HTTPClient = &http.Client{Timeout: time.Duration(provider.TimeoutSeconds) * time.Second}
	oc := &OpenAICompleter{client: openai.NewClientWithConfig(c), model: model}
	for _, opt := range opts {
		opt(oc)
	}
	return oc, nil
}

// Complete sends a system and a user message and returns the first choice's content.
func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	res, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		// Zero is dropped by omitempty and the API would use its default of 1.
		Temperature: math.SmallestNonzeroFloat32,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("provider returned %d (%s): %w", apiErr.HTTPStatusCode, apiErr.Type, err)
		}
		return "", apperr.E(apperr.KindProvider, "create chat completion", err)
	}
	if len(res.Choices) == 0 {
		return "", apperr.E(apperr.KindProvider, "create chat completion", ErrNoChoices)
	}
	if c.logger != nil {
		c.logger.Debug("completion created",
			zap.String("model", c.model),
			zap.Int("prompt_tokens", res.Usage.PromptTokens),
			zap.Int("completion_tokens", res.Usage.CompletionTokens),
			zap.Duration("took", time.Since(start)))
	}
	return res.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (c *OpenAICompleter) Model() string { return c.model }
