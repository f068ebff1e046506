// Package local implements the llm.Model interface against a local
// OpenAI-compatible inference server (Ollama, LocalAI, llama.cpp server).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/internal/httpclient"
)

const (
	// DefaultBaseURL points at Ollama's OpenAI-compatible endpoint.
	DefaultBaseURL = "http://localhost:11434/v1"

	defaultTimeoutSeconds = 300 // local models can be slow on first load
)

// Config holds local inference client configuration.
type Config struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Logger         *zap.SugaredLogger // nil = nop logger
}

// Client calls a local OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// NewClient creates a local inference client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		// Local endpoints live on localhost, so private IPs stay reachable.
		httpClient: httpclient.New(time.Duration(timeout)*time.Second, httpclient.Options{BlockPrivateIP: false}),
		logger:     logger,
	}
}

// Name implements llm.Model.
func (c *Client) Name() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements llm.Model.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		Stream:      false,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.WrapCollaborator(err, "local inference request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WrapCollaborator(err, "failed to read local inference response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapCollaborator(
			errors.Newf("local inference returned status %d: %s", resp.StatusCode, string(respBody)),
			"local inference request rejected")
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.WrapCollaborator(err, "failed to unmarshal local inference response")
	}
	if len(parsed.Choices) == 0 {
		return "", errors.WrapCollaborator(errors.New("no choices in response"), "local inference response empty")
	}

	c.logger.Debugw("local completion",
		"model", c.model, "elapsed", time.Since(start))
	return parsed.Choices[0].Message.Content, nil
}
