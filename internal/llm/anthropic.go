package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient implements the Client interface using the official
// Anthropic SDK.
type anthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &anthropicClient{
		// Retries are the router's job; the SDK's built-in retry loop would
		// hide rate limits from it.
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends one message exchange to the Anthropic API.
func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return CompletionResponse{}, classifyAnthropicError(err)
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return CompletionResponse{Text: block.Text, Usage: usage}, nil
		}
	}
	return CompletionResponse{}, fmt.Errorf("no text content in anthropic response")
}

// classifyAnthropicError maps SDK errors onto the typed failures the
// router understands.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &TransportError{Err: err}
	}

	switch {
	case apiErr.StatusCode == 429:
		return &RateLimitError{}
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return &AuthError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	case apiErr.StatusCode >= 500:
		return &ServerError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	default:
		return fmt.Errorf("anthropic API error: %w", err)
	}
}
