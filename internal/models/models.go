// Package models defines core data structures for folders, files, chunks, and chat.
package models

import "time"

// Visibility controls whether a folder's content is shared or owner-only.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// File ingestion statuses, in pipeline order.
const (
	FileStatusUploading  = "uploading"
	FileStatusChunking   = "chunking"
	FileStatusEmbedding  = "embedding"
	FileStatusReplacing  = "replacing_index"
	FileStatusPersisting = "persisting"
	FileStatusReady      = "ready"
	FileStatusFailed     = "failed"
)

// User is an authenticated identity that owns folders, files, and chats.
type User struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Folder groups files under one owner and visibility.
type Folder struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// File is an uploaded plain-text document. BlobKey locates the raw bytes in
// blob storage; Status tracks ingestion progress.
type File struct {
	ID         string     `json:"id" db:"id"`
	FolderID   string     `json:"folder_id" db:"folder_id"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	Name       string     `json:"name" db:"name"`
	BlobKey    string     `json:"blob_key" db:"blob_key"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	Status     string     `json:"status" db:"status"`
	Size       int64      `json:"size" db:"size"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// TextChunk is a chunker output: a window of source text with its 1-based
// inclusive line range and position in the chunk sequence. It lives only for
// the duration of one ingestion call.
type TextChunk struct {
	Content   string
	StartLine int
	EndLine   int
	Index     int
}

// ChunkRecord is a persisted chunk. Records are immutable; re-ingestion
// deletes and recreates the whole set for a file.
type ChunkRecord struct {
	ID         string     `json:"id" db:"id"`
	FileID     string     `json:"file_id" db:"file_id"`
	FolderID   string     `json:"folder_id" db:"folder_id"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	ChunkIndex int        `json:"chunk_index" db:"chunk_index"`
	StartLine  int        `json:"start_line" db:"start_line"`
	EndLine    int        `json:"end_line" db:"end_line"`
	Content    string     `json:"content" db:"content"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ChunkContext is a chunk record joined with its folder and file names,
// as offered to the language model and returned to callers as a source.
type ChunkContext struct {
	ChunkID    string `json:"chunk_id"`
	FileID     string `json:"file_id"`
	FolderID   string `json:"folder_id"`
	FolderName string `json:"folder_name"`
	FileName   string `json:"file_name"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Content    string `json:"content"`
}

// VectorMetadata is the denormalized context stored alongside each embedding
// so citations render without a join at query time. It is written at upsert
// time and must be kept in sync with the chunk/file/folder rows it copies.
type VectorMetadata struct {
	ChunkID    string     `json:"chunkId"`
	FileID     string     `json:"fileId"`
	FolderID   string     `json:"folderId"`
	FolderName string     `json:"folderName"`
	FileName   string     `json:"fileName"`
	StartLine  int        `json:"startLine"`
	EndLine    int        `json:"endLine"`
	Visibility Visibility `json:"visibility"`
	OwnerID    string     `json:"ownerId"`
}

// VectorMatch is a similarity query hit.
type VectorMatch struct {
	VectorMetadata
	Score float64 `json:"score"`
}

// Citation is a model-selected basis for part of an answer. Lines is the
// inclusive [start, end] range and must match the cited chunk exactly.
type Citation struct {
	Folder string `json:"folder"`
	File   string `json:"file"`
	Lines  [2]int `json:"lines"`
}

// ChatResult is the structured outcome of one chat turn.
type ChatResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// ChatRecord is a persisted question/answer pair for history and audit.
type ChatRecord struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Question  string     `json:"question" db:"question"`
	Answer    string     `json:"answer" db:"answer"`
	Citations []Citation `json:"citations" db:"-"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
