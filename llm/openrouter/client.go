// Package openrouter implements the llm.Model interface against the
// OpenRouter.ai chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/internal/httpclient"
)

const (
	// DefaultModel is the fallback model when none is specified
	DefaultModel = "openai/gpt-4o-mini"

	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 120 * time.Second
)

// Config holds OpenRouter client configuration.
type Config struct {
	APIKey            string
	Model             string
	MaxTokens         *int               // nil = use default (1000)
	RequestsPerMinute int                // 0 = no client-side rate limit
	Logger            *zap.SugaredLogger // nil = nop logger
}

// Client is an OpenRouter.ai API client.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewClient creates a new OpenRouter client with quilt defaults.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	maxTokens := 1000
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		model:      cfg.Model,
		maxTokens:  maxTokens,
		httpClient: httpclient.New(defaultTimeout, httpclient.Options{BlockPrivateIP: true}),
		limiter:    limiter,
		logger:     logger,
	}
}

// Name implements llm.Model.
func (c *Client) Name() string { return c.model }

// Message represents a message in a chat completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents a request to the chat completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completions.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends a chat completion request to OpenRouter.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "quilt")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Complete implements llm.Model. Transient failures are retried with
// linear backoff before the error is surfaced as a collaborator failure.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("OpenRouter API key not configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "rate limit wait cancelled")
		}
	}

	req := ChatCompletionRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	c.logger.Debugw("LLM completion request",
		"model", c.model, "temperature", temperature, "prompt_len", len(prompt))

	const maxRetries = 3
	var resp *ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.logger.Debugw("retrying OpenRouter request",
				"attempt", attempt, "max_retries", maxRetries-1, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		resp, err = c.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", errors.WrapCollaborator(err, "OpenRouter completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.WrapCollaborator(errors.New("no choices in response"), "OpenRouter completion empty")
	}

	c.logger.Debugw("LLM completion response",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
