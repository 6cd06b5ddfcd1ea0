package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Generation identifies which index API generation the remote store speaks.
type Generation int

const (
	// GenerationA partitions data by an explicit namespace string on every call.
	GenerationA Generation = iota + 1
	// GenerationB keeps all vectors in one global space; isolation comes from
	// visibility/owner metadata plus a filter at query time.
	GenerationB
)

func (g Generation) String() string {
	switch g {
	case GenerationA:
		return "a"
	case GenerationB:
		return "b"
	default:
		return "unknown"
	}
}

// ParseGeneration maps a config string to a Generation. Empty means unknown
// (probe at construction).
func ParseGeneration(s string) (Generation, bool) {
	switch s {
	case "a", "A":
		return GenerationA, true
	case "b", "B":
		return GenerationB, true
	default:
		return 0, false
	}
}

// HTTPConfig holds configuration for the remote index client.
type HTTPConfig struct {
	// BaseURL is the index endpoint (required).
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Generation pins the API generation. Zero means probe once at
	// construction: the describe operation only exists on generation B.
	Generation Generation

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// Logger is optional; dropped matches and fallback retries are logged.
	Logger *zap.Logger
}

// HTTPStore talks to a remote vector index over REST, dispatching on the API
// generation resolved once at construction.
type HTTPStore struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	generation Generation
	logger     *zap.Logger
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates a remote index client. When the generation is not
// configured it is resolved by a single capability probe.
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vectorstore: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &HTTPStore{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  cfg.Logger,
	}
	s.generation = cfg.Generation
	if s.generation == 0 {
		s.generation = s.probeGeneration()
		s.logger.Info("vector index generation resolved", zap.String("generation", s.generation.String()))
	}
	return s, nil
}

// Generation returns the resolved API generation.
func (s *HTTPStore) Generation() Generation {
	return s.generation
}

// probeGeneration checks for the describe operation, which only generation B
// exposes. Runs exactly once, at construction.
func (s *HTTPStore) probeGeneration() Generation {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/describe_index_stats", bytes.NewReader([]byte("{}")))
	if err != nil {
		return GenerationA
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return GenerationA
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return GenerationB
	}
	return GenerationA
}

type upsertVector struct {
	ID       string                `json:"id"`
	Values   []float32             `json:"values"`
	Metadata models.VectorMetadata `json:"metadata"`
}

type upsertRequest struct {
	Namespace string         `json:"namespace,omitempty"`
	Vectors   []upsertVector `json:"vectors"`
}

// Upsert writes one vector with its metadata. The namespace is derived from
// the metadata's visibility and owner; generation B stores globally and
// relies on the metadata fields instead.
func (s *HTTPStore) Upsert(ctx context.Context, id string, vector []float32, meta models.VectorMetadata) error {
	req := upsertRequest{Vectors: []upsertVector{{ID: id, Values: vector, Metadata: meta}}}
	if s.generation == GenerationA {
		req.Namespace = NamespaceFor(meta.Visibility, meta.OwnerID)
	}
	if err := s.post(ctx, "/vectors/upsert", req, nil); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", apperr.ErrIndex, id, err)
	}
	return nil
}

type queryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string                `json:"id"`
		Score    float64               `json:"score"`
		Metadata models.VectorMetadata `json:"metadata"`
	} `json:"matches"`
}

// Query returns the topK nearest vectors in a namespace. On generation B the
// namespace is translated into a metadata filter; a filtered query with zero
// matches is retried once without the filter, so vectors written before
// metadata existed stay discoverable. The retry is transparent and applies no
// further ownership filtering.
func (s *HTTPStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.VectorMatch, error) {
	req := queryRequest{Vector: vector, TopK: topK, IncludeMetadata: true}
	if s.generation == GenerationA {
		req.Namespace = namespace
	} else {
		req.Filter = filterForNamespace(namespace)
	}
	var resp queryResponse
	if err := s.post(ctx, "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: query namespace %s: %v", apperr.ErrIndex, namespace, err)
	}
	if s.generation == GenerationB && len(resp.Matches) == 0 && req.Filter != nil {
		s.logger.Debug("filtered query empty, retrying unfiltered", zap.String("namespace", namespace))
		req.Filter = nil
		resp = queryResponse{}
		if err := s.post(ctx, "/query", req, &resp); err != nil {
			return nil, fmt.Errorf("%w: unfiltered retry for namespace %s: %v", apperr.ErrIndex, namespace, err)
		}
	}
	matches := make([]models.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Metadata.ChunkID == "" {
			s.logger.Warn("dropping match without chunk id", zap.String("vector_id", m.ID), zap.String("namespace", namespace))
			continue
		}
		matches = append(matches, models.VectorMatch{VectorMetadata: m.Metadata, Score: m.Score})
	}
	return matches, nil
}

type deleteRequest struct {
	Namespace string   `json:"namespace,omitempty"`
	IDs       []string `json:"ids"`
}

// DeleteByIDs removes vectors by id. Generation A scopes the delete to the
// namespace derived from visibility/owner; generation B deletes globally and
// ignores both parameters.
func (s *HTTPStore) DeleteByIDs(ctx context.Context, ids []string, visibility models.Visibility, ownerID string) error {
	if len(ids) == 0 {
		return nil
	}
	req := deleteRequest{IDs: ids}
	if s.generation == GenerationA {
		req.Namespace = NamespaceFor(visibility, ownerID)
	}
	if err := s.post(ctx, "/vectors/delete", req, nil); err != nil {
		return fmt.Errorf("%w: delete %d vectors: %v", apperr.ErrIndex, len(ids), err)
	}
	return nil
}

// filterForNamespace translates a namespace into the generation-B metadata
// filter that isolates the same partition.
func filterForNamespace(namespace string) map[string]any {
	if namespace == NamespacePublic {
		return map[string]any{"visibility": string(models.VisibilityPublic)}
	}
	owner := namespace[len(ownerNamespacePrefix):]
	return map[string]any{
		"visibility": string(models.VisibilityPrivate),
		"ownerId":    owner,
	}
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Api-Key", s.apiKey)
	}
}

func (s *HTTPStore) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("index returned status %d: %s", resp.StatusCode, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
