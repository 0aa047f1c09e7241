package llm

import (
	"context"
)

// Client defines the interface for model backends.
type Client interface {
	// Complete sends one prompt exchange and returns the raw text reply.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest is one prompt exchange: a system instruction plus the
// per-case user prompt.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the raw text reply and token accounting.
type CompletionResponse struct {
	Text  string
	Usage Usage
}

// Usage counts the tokens one call consumed.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// TotalTokens returns the combined input and output token count.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another call's usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Config holds the connection settings for one model backend.
type Config struct {
	Provider    string // "azure" or "anthropic"
	APIKey      string
	Endpoint    string // Azure resource endpoint; unused for Anthropic
	Model       string // Azure deployment name or Anthropic model name
	APIVersion  string // Azure api-version query parameter
	MaxTokens   int
	Temperature float64
}
