// Package remote implements the embedding Provider against any
// OpenAI-compatible /embeddings endpoint (OpenAI, OpenRouter, Ollama,
// LocalAI and friends speak the same shape).
package remote

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
	// DefaultModel is the fallback embedding model when none is specified
	DefaultModel = "text-embedding-3-small"

	defaultTimeout = 120 * time.Second
)

// Config holds embedding client configuration.
type Config struct {
	BaseURL string // e.g. "https://api.openai.com/v1" or "http://localhost:11434/v1"
	APIKey  string
	Model   string
	Local   bool               // allow localhost/private endpoints (local inference)
	Logger  *zap.SugaredLogger // nil = nop logger
}

// Client calls a hosted embeddings endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// NewClient creates an embeddings client with quilt defaults.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpclient.New(defaultTimeout, httpclient.Options{BlockPrivateIP: !cfg.Local}),
		logger:     logger,
	}
}

// Model implements embedding.Provider.
func (c *Client) Model() string { return c.model }

// Embed implements embedding.Provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embeddingRequest matches the OpenAI embeddings request shape.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse matches the OpenAI embeddings response shape.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedBatch implements embedding.Provider.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}
	for i, text := range texts {
		if text == "" {
			return nil, errors.Newf("text at index %d is empty", i)
		}
	}

	reqBody, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embeddings request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embeddings request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WrapCollaborator(err, "embeddings request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapCollaborator(err, "failed to read embeddings response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapCollaborator(
			errors.Newf("embeddings API returned status %d: %s", resp.StatusCode, string(respBody)),
			"embeddings request rejected")
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.WrapCollaborator(err, "failed to unmarshal embeddings response")
	}
	if len(parsed.Data) != len(texts) {
		return nil, errors.WrapCollaborator(
			errors.Newf("embeddings API returned %d vectors for %d inputs", len(parsed.Data), len(texts)),
			"embeddings response incomplete")
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, errors.WrapCollaborator(
				errors.Newf("embeddings API returned out-of-range index %d", d.Index),
				"embeddings response malformed")
		}
		vectors[d.Index] = d.Embedding
	}

	c.logger.Debugw("embedded batch",
		"model", c.model,
		"texts", len(texts),
		"tokens", parsed.Usage.TotalTokens,
		"elapsed", time.Since(start))
	return vectors, nil
}
