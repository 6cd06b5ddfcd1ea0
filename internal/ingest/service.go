// Package ingest orchestrates the upload-to-index pipeline: blob fetch,
// chunking, embedding, and atomic replacement of a file's chunks and vectors.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

// Service runs the ingestion pipeline for uploaded files.
type Service struct {
	storage  storage.Storage
	blobs    blob.Store
	embedder embedding.Embedder
	vectors  vectorstore.Store
	opts     chunker.Options
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for pipeline progress events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates an ingestion service with the given dependencies.
func NewService(
	st storage.Storage,
	blobs blob.Store,
	embedder embedding.Embedder,
	vectors vectorstore.Store,
	opts chunker.Options,
	options ...Option,
) *Service {
	s := &Service{
		storage:  st,
		blobs:    blobs,
		embedder: embedder,
		vectors:  vectors,
		opts:     opts,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Upload stores raw bytes as a new file in a folder and returns the created
// record with status uploading. The caller must own the folder unless it is
// public and owned by them; cross-owner uploads are rejected.
func (s *Service) Upload(ctx context.Context, callerID, folderID, name string, data []byte) (*models.File, error) {
	folder, err := s.storage.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.OwnerID != callerID {
		return nil, fmt.Errorf("%w: folder %s is not owned by caller", apperr.ErrForbidden, folderID)
	}
	file := &models.File{
		ID:         uuid.New().String(),
		FolderID:   folder.ID,
		OwnerID:    callerID,
		Name:       name,
		Visibility: folder.Visibility,
		Status:     models.FileStatusUploading,
		Size:       int64(len(data)),
	}
	file.BlobKey = "files/" + file.ID
	if err := s.blobs.Put(ctx, file.BlobKey, data, "text/plain"); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	if err := s.storage.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	s.logger.Debug("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("folder_id", folder.ID),
		zap.Int64("size", file.Size))
	return file, nil
}

// IngestFile runs the full pipeline for one file: chunk, embed, replace the
// previous chunk set and vectors, persist. The caller must own the file.
// Existing chunks and vectors are only deleted after embedding succeeds, so a
// provider outage leaves the previous index generation intact and queryable.
func (s *Service) IngestFile(ctx context.Context, fileID, callerID string) error {
	file, err := s.storage.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != callerID {
		return fmt.Errorf("%w: file %s is not owned by caller", apperr.ErrForbidden, fileID)
	}
	folder, err := s.storage.GetFolder(ctx, file.FolderID)
	if err != nil {
		return err
	}
	if err := s.run(ctx, file, folder); err != nil {
		if statusErr := s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusFailed); statusErr != nil {
			s.logger.Warn("failed to mark file as failed", zap.String("file_id", file.ID), zap.Error(statusErr))
		}
		return err
	}
	return s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusReady)
}

func (s *Service) run(ctx context.Context, file *models.File, folder *models.Folder) error {
	if err := s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusChunking); err != nil {
		return err
	}
	data, err := s.blobs.Get(ctx, file.BlobKey)
	if err != nil {
		return fmt.Errorf("%w: blob for file %s: %v", apperr.ErrNotFound, file.ID, err)
	}

	chunks, err := chunker.Chunk(string(data), s.opts)
	if err != nil {
		return fmt.Errorf("chunking failed: %w", err)
	}
	s.logger.Debug("file chunked", zap.String("file_id", file.ID), zap.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		return fmt.Errorf("%w: nothing to ingest: file %s is empty", apperr.ErrInvalid, file.ID)
	}

	if err := s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusEmbedding); err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", apperr.ErrCountMismatch, len(embeddings), len(chunks))
	}

	// The old generation is removed only now, with new embeddings in hand.
	if err := s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusReplacing); err != nil {
		return err
	}
	oldIDs, err := s.storage.DeleteChunksByFileID(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}
	if len(oldIDs) > 0 {
		if err := s.vectors.DeleteByIDs(ctx, oldIDs, file.Visibility, file.OwnerID); err != nil {
			return fmt.Errorf("failed to delete previous vectors: %w", err)
		}
	}

	records := make([]*models.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = &models.ChunkRecord{
			ID:         uuid.New().String(),
			FileID:     file.ID,
			FolderID:   folder.ID,
			OwnerID:    file.OwnerID,
			Visibility: file.Visibility,
			ChunkIndex: ch.Index,
			StartLine:  ch.StartLine,
			EndLine:    ch.EndLine,
			Content:    ch.Content,
		}
	}

	if err := s.storage.UpdateFileStatus(ctx, file.ID, models.FileStatusPersisting); err != nil {
		return err
	}
	// Records go in before their vectors: a failure mid-upsert leaves chunks
	// without vectors, which the next ingestion replaces, rather than vectors
	// pointing at records that were never written.
	if err := s.storage.BatchCreateChunks(ctx, records); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}

	for i, rec := range records {
		meta := models.VectorMetadata{
			ChunkID:    rec.ID,
			FileID:     file.ID,
			FolderID:   folder.ID,
			FolderName: folder.Name,
			FileName:   file.Name,
			StartLine:  rec.StartLine,
			EndLine:    rec.EndLine,
			Visibility: file.Visibility,
			OwnerID:    file.OwnerID,
		}
		if err := s.vectors.Upsert(ctx, rec.ID, embeddings[i], meta); err != nil {
			return fmt.Errorf("failed to upsert vector %d: %w", i, err)
		}
	}
	s.logger.Info("file ingested",
		zap.String("file_id", file.ID),
		zap.String("file_name", file.Name),
		zap.Int("chunks", len(records)))
	return nil
}

// DeleteFile removes a file, its chunks, its vectors, and its blob. The
// caller must own the file.
func (s *Service) DeleteFile(ctx context.Context, fileID, callerID string) error {
	file, err := s.storage.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != callerID {
		return fmt.Errorf("%w: file %s is not owned by caller", apperr.ErrForbidden, fileID)
	}
	chunkIDs, err := s.storage.DeleteChunksByFileID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if len(chunkIDs) > 0 {
		if err := s.vectors.DeleteByIDs(ctx, chunkIDs, file.Visibility, file.OwnerID); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}
	if err := s.blobs.Delete(ctx, file.BlobKey); err != nil {
		s.logger.Warn("failed to delete blob", zap.String("file_id", fileID), zap.Error(err))
	}
	if err := s.storage.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.logger.Debug("file deleted", zap.String("file_id", fileID))
	return nil
}

// SanitizeName turns an arbitrary file name into a safe display name: path
// separators are stripped, leaving the base name.
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}
