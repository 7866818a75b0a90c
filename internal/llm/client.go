// Package llm wraps the chat-completion API used by the AI proxy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clicloop/internal/circuitbreaker"
	"github.com/clicloop/internal/types"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model answers with no choices
var ErrEmptyCompletion = errors.New("empty completion response")

// Config holds the model settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// CompletionRequest is one instruction plus one user prompt
type CompletionRequest struct {
	Instruction string
	Prompt      string
	// UserID is forwarded for upstream abuse attribution
	UserID string
}

// Completion is the model's answer
type Completion struct {
	Text  string
	Model string
	Usage types.Usage
}

// Client issues exactly one chat-completion call per request; it never retries.
// With a circuit breaker attached, calls fail fast while the provider is down.
type Client struct {
	client  *openai.Client
	config  Config
	breaker *circuitbreaker.CircuitBreaker
}

// NewClient creates a client. A missing API key is reported by Configured, not here,
// so the server can start and answer 500 on use.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// WithCircuitBreaker guards provider calls with cb
func (c *Client) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Client {
	c.breaker = cb
	return c
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends the instruction as the system message and the prompt as the user message
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instruction},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		User:        req.UserID,
	}

	var (
		resp    openai.ChatCompletionResponse
		callErr error
	)
	call := func(ctx context.Context) error {
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil && isOutage(callErr) {
			return callErr
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		err = callErr
	}
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// isOutage reports whether err means the provider itself is unhealthy. Rejected
// requests (4xx other than 429) say nothing about provider health.
func isOutage(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}
