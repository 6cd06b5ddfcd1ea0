// Package chat answers questions over ingested documents: retrieval across
// the caller's visible namespaces, answer synthesis, and citation grounding.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

// freeformPrefix switches a question to direct model chat, skipping retrieval.
const freeformPrefix = "/chat "

// Response is the outcome of one chat turn.
type Response struct {
	ChatID    string                 `json:"chat_id"`
	Answer    string                 `json:"answer"`
	Citations []models.Citation      `json:"citations"`
	Sources   []*models.ChunkContext `json:"sources"`
}

// Service answers questions using retrieval plus a chat model.
type Service struct {
	storage  storage.Storage
	embedder embedding.Embedder
	vectors  vectorstore.Store
	model    llm.ChatModel
	topK     int
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for retrieval and synthesis events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a chat service. topK bounds how many contexts are
// offered to the model per question.
func NewService(
	st storage.Storage,
	embedder embedding.Embedder,
	vectors vectorstore.Store,
	model llm.ChatModel,
	topK int,
	options ...Option,
) *Service {
	if topK <= 0 {
		topK = 8
	}
	s := &Service{
		storage:  st,
		embedder: embedder,
		vectors:  vectors,
		model:    model,
		topK:     topK,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Ask answers one question for the caller. Questions with the freeform prefix
// go straight to the model; everything else is grounded in retrieved chunks.
// Every turn is persisted to chat history.
func (s *Service) Ask(ctx context.Context, callerID, question string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	var resp *Response
	if freeform, ok := strings.CutPrefix(question, freeformPrefix); ok {
		resp = s.askFreeform(ctx, strings.TrimSpace(freeform))
	} else {
		grounded, err := s.askGrounded(ctx, callerID, question)
		if err != nil {
			return nil, err
		}
		resp = grounded
	}

	record := &models.ChatRecord{
		ID:        uuid.New().String(),
		UserID:    callerID,
		Question:  question,
		Answer:    resp.Answer,
		Citations: resp.Citations,
	}
	if err := s.storage.CreateChat(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist chat: %w", err)
	}
	resp.ChatID = record.ID
	return resp, nil
}

// askFreeform chats with the model directly. Citations are always empty: with
// no retrieved contexts there is nothing to ground them in.
func (s *Service) askFreeform(ctx context.Context, question string) *Response {
	raw, err := s.model.Complete(ctx, buildFreeformMessages(question), answerSchema)
	if err != nil {
		s.logger.Warn("freeform completion failed", zap.Error(err))
		return &Response{Answer: apologyAnswer, Citations: []models.Citation{}, Sources: []*models.ChunkContext{}}
	}
	result := parseResult(raw)
	return &Response{Answer: result.Answer, Citations: []models.Citation{}, Sources: []*models.ChunkContext{}}
}

func (s *Service) askGrounded(ctx context.Context, callerID, question string) (*Response, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one question embedding, got %d", len(vectors))
	}

	matches := s.retrieve(ctx, callerID, vectors[0])
	contexts, err := s.resolveContexts(ctx, matches)
	if err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		// No grounding material: answer fixed, no model call.
		return &Response{Answer: noMatchAnswer, Citations: []models.Citation{}, Sources: []*models.ChunkContext{}}, nil
	}

	raw, err := s.model.Complete(ctx, buildMessages(question, contexts), answerSchema)
	if err != nil {
		s.logger.Warn("completion failed", zap.Error(err))
		return &Response{Answer: apologyAnswer, Citations: []models.Citation{}, Sources: contexts}, nil
	}
	result := parseResult(raw)
	return &Response{
		Answer:    result.Answer,
		Citations: validCitations(result.Citations, contexts),
		Sources:   contexts,
	}, nil
}

// retrieve fans the query out to the public namespace and the caller's
// private one concurrently, then merges by chunk id keeping the best score.
// A failing namespace degrades to zero matches rather than failing the
// question.
func (s *Service) retrieve(ctx context.Context, callerID string, vector []float32) []models.VectorMatch {
	namespaces := []string{vectorstore.NamespacePublic, vectorstore.OwnerNamespace(callerID)}
	results := make([][]models.VectorMatch, len(namespaces))

	var wg sync.WaitGroup
	for i, ns := range namespaces {
		wg.Add(1)
		go func(i int, ns string) {
			defer wg.Done()
			matches, err := s.vectors.Query(ctx, ns, vector, s.topK)
			if err != nil {
				s.logger.Warn("namespace query failed", zap.String("namespace", ns), zap.Error(err))
				return
			}
			results[i] = matches
		}(i, ns)
	}
	wg.Wait()

	best := make(map[string]models.VectorMatch)
	for _, matches := range results {
		for _, m := range matches {
			if prev, ok := best[m.ChunkID]; !ok || m.Score > prev.Score {
				best[m.ChunkID] = m
			}
		}
	}
	merged := make([]models.VectorMatch, 0, len(best))
	for _, m := range best {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if s.topK < len(merged) {
		merged = merged[:s.topK]
	}
	return merged
}

// resolveContexts loads the matched chunks from storage, preserving match
// order. Matches whose chunks no longer exist are dropped; the index can
// briefly trail a re-ingestion.
func (s *Service) resolveContexts(ctx context.Context, matches []models.VectorMatch) ([]*models.ChunkContext, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	loaded, err := s.storage.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	byID := make(map[string]*models.ChunkContext, len(loaded))
	for _, cc := range loaded {
		byID[cc.ChunkID] = cc
	}
	contexts := make([]*models.ChunkContext, 0, len(matches))
	for _, m := range matches {
		cc, ok := byID[m.ChunkID]
		if !ok {
			s.logger.Debug("dropping dangling match", zap.String("chunk_id", m.ChunkID))
			continue
		}
		contexts = append(contexts, cc)
	}
	return contexts, nil
}

// History returns the caller's recent chat turns, newest first.
func (s *Service) History(ctx context.Context, callerID string, limit int) ([]*models.ChatRecord, error) {
	return s.storage.ListChatsByUser(ctx, callerID, limit)
}
