package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the embedding client.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Dimensions is the expected vector size (default: 1536). Must equal the
	// vector index dimensionality; mismatches surface as index errors.
	Dimensions int

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration
}

// Client generates embeddings over an OpenAI-style /embeddings endpoint.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

var _ Embedder = (*Client)(nil)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// NewClient creates an embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed generates one vector per input text, order preserving. Upstream
// failures and empty results are reported as provider errors.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	jsonBody, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send embedding request: %v", apperr.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response: %v", apperr.ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding provider returned status %d: %s", apperr.ErrProvider, resp.StatusCode, string(body))
	}

	vectors, err := normalizeEmbeddings(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrProvider, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedding provider returned zero vectors", apperr.ErrProvider)
	}
	return vectors, nil
}

// Dimensions returns the configured embedding vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// normalizeEmbeddings extracts vectors from a provider response. The same
// logical call is wrapped differently depending on the calling context, so the
// accepted shapes are tried in a fixed order:
//
//  1. object with a "data" list of {embedding} entries (OpenAI style)
//  2. raw list of lists
//  3. raw flat list, interpreted as a single vector
//  4. wrapper object with a "vectors" field
//
// Every ingestion and query path depends on this contract; when no shape
// matches the failure is explicit, never a silent guess.
func normalizeEmbeddings(body []byte) ([][]float32, error) {
	var dataShape struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     *int      `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &dataShape); err == nil && len(dataShape.Data) > 0 {
		vectors := make([][]float32, len(dataShape.Data))
		for i, d := range dataShape.Data {
			pos := i
			if d.Index != nil {
				pos = *d.Index
			}
			if pos < 0 || pos >= len(vectors) {
				return nil, fmt.Errorf("embedding response index %d out of range", pos)
			}
			vectors[pos] = d.Embedding
		}
		return vectors, nil
	}

	var listShape [][]float32
	if err := json.Unmarshal(body, &listShape); err == nil && len(listShape) > 0 {
		return listShape, nil
	}

	var flatShape []float32
	if err := json.Unmarshal(body, &flatShape); err == nil && len(flatShape) > 0 {
		return [][]float32{flatShape}, nil
	}

	var wrapperShape struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := json.Unmarshal(body, &wrapperShape); err == nil && len(wrapperShape.Vectors) > 0 {
		return wrapperShape.Vectors, nil
	}

	return nil, fmt.Errorf("embedding response matched no known shape: %s", truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
