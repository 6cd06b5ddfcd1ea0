// Package storage defines the persistence interface for users, folders,
// files, chunks, and chat history.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines relational persistence operations. All not-found conditions
// are reported as apperr.ErrNotFound so callers can map them uniformly.
type Storage interface {
	// User operations
	EnsureUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Folder operations
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	// ListFolders returns all public folders plus the caller's private ones.
	ListFolders(ctx context.Context, callerID string) ([]*models.Folder, error)

	// File operations
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	UpdateFileStatus(ctx context.Context, id, status string) error
	ListFilesByFolder(ctx context.Context, folderID string) ([]*models.File, error)
	DeleteFile(ctx context.Context, id string) error

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.ChunkRecord) error
	// DeleteChunksByFileID removes all chunks for a file and returns the
	// deleted chunk ids, so the caller can evict the matching vectors.
	DeleteChunksByFileID(ctx context.Context, fileID string) ([]string, error)
	// GetChunksByIDs returns chunks joined with their folder and file names.
	// Missing ids are silently absent from the result.
	GetChunksByIDs(ctx context.Context, ids []string) ([]*models.ChunkContext, error)

	// Chat operations
	CreateChat(ctx context.Context, chat *models.ChatRecord) error
	ListChatsByUser(ctx context.Context, userID string, limit int) ([]*models.ChatRecord, error)

	// Stats
	CountFiles(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
