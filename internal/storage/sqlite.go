// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		visibility TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_folders_owner_id ON folders(owner_id);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		folder_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		blob_key TEXT NOT NULL,
		visibility TEXT NOT NULL,
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (folder_id) REFERENCES folders(id)
	);

	CREATE INDEX IF NOT EXISTS idx_files_folder_id ON files(folder_id);
	CREATE INDEX IF NOT EXISTS idx_files_owner_id ON files(owner_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		folder_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		visibility TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (file_id) REFERENCES files(id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_index ON chunks(file_id, chunk_index);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		citations TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chats_user_id ON chats(user_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureUser inserts the user if it does not exist yet.
func (s *SQLiteStorage) EnsureUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		user.ID, user.DisplayName, user.CreatedAt,
	)
	return err
}

// GetUser returns a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateFolder inserts a folder.
func (s *SQLiteStorage) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, name, owner_id, visibility, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		folder.ID, folder.Name, folder.OwnerID, folder.Visibility, folder.CreatedAt,
	)
	return err
}

// GetFolder returns a folder by ID.
func (s *SQLiteStorage) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, visibility, created_at FROM folders WHERE id = ?`, id,
	).Scan(&folder.ID, &folder.Name, &folder.OwnerID, &folder.Visibility, &folder.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: folder %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders returns all public folders plus the caller's private ones.
func (s *SQLiteStorage) ListFolders(ctx context.Context, callerID string) ([]*models.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id, visibility, created_at FROM folders
		 WHERE visibility = ? OR owner_id = ?
		 ORDER BY created_at DESC`,
		models.VisibilityPublic, callerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.OwnerID, &folder.Visibility, &folder.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, &folder)
	}
	return folders, rows.Err()
}

// CreateFile inserts a file.
func (s *SQLiteStorage) CreateFile(ctx context.Context, file *models.File) error {
	now := time.Now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, folder_id, owner_id, name, blob_key, visibility, status, size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.FolderID, file.OwnerID, file.Name, file.BlobKey, file.Visibility, file.Status, file.Size, file.CreatedAt, file.UpdatedAt,
	)
	return err
}

// GetFile returns a file by ID.
func (s *SQLiteStorage) GetFile(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := s.db.QueryRowContext(ctx,
		`SELECT id, folder_id, owner_id, name, blob_key, visibility, status, size, created_at, updated_at
		 FROM files WHERE id = ?`, id,
	).Scan(&file.ID, &file.FolderID, &file.OwnerID, &file.Name, &file.BlobKey, &file.Visibility, &file.Status, &file.Size, &file.CreatedAt, &file.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// UpdateFileStatus advances a file's ingestion status.
func (s *SQLiteStorage) UpdateFileStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	return nil
}

// ListFilesByFolder returns all files in a folder ordered by name.
func (s *SQLiteStorage) ListFilesByFolder(ctx context.Context, folderID string) ([]*models.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, folder_id, owner_id, name, blob_key, visibility, status, size, created_at, updated_at
		 FROM files WHERE folder_id = ? ORDER BY name`,
		folderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		var file models.File
		if err := rows.Scan(&file.ID, &file.FolderID, &file.OwnerID, &file.Name, &file.BlobKey, &file.Visibility, &file.Status, &file.Size, &file.CreatedAt, &file.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, &file)
	}
	return files, rows.Err()
}

// DeleteFile removes a file row by ID. Chunks are deleted separately so the
// caller can collect their ids for vector eviction.
func (s *SQLiteStorage) DeleteFile(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	return err
}

// BatchCreateChunks inserts multiple chunk records in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, file_id, folder_id, owner_id, visibility, chunk_index, start_line, end_line, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.FileID, chunk.FolderID, chunk.OwnerID, chunk.Visibility,
			chunk.ChunkIndex, chunk.StartLine, chunk.EndLine, chunk.Content, chunk.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteChunksByFileID removes all chunks for a file and returns their ids.
func (s *SQLiteStorage) DeleteChunksByFileID(ctx context.Context, fileID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// GetChunksByIDs returns chunks joined with their folder and file names.
// Missing ids are silently absent from the result.
func (s *SQLiteStorage) GetChunksByIDs(ctx context.Context, ids []string) ([]*models.ChunkContext, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.file_id, c.folder_id, fo.name, fi.name, c.start_line, c.end_line, c.content
		 FROM chunks c
		 JOIN files fi ON fi.id = c.file_id
		 JOIN folders fo ON fo.id = c.folder_id
		 WHERE c.id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contexts []*models.ChunkContext
	for rows.Next() {
		var cc models.ChunkContext
		if err := rows.Scan(&cc.ChunkID, &cc.FileID, &cc.FolderID, &cc.FolderName, &cc.FileName, &cc.StartLine, &cc.EndLine, &cc.Content); err != nil {
			return nil, err
		}
		contexts = append(contexts, &cc)
	}
	return contexts, rows.Err()
}

// CreateChat persists a question/answer pair with its citations.
func (s *SQLiteStorage) CreateChat(ctx context.Context, chat *models.ChatRecord) error {
	citationsJSON, err := json.Marshal(chat.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, question, answer, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Question, chat.Answer, string(citationsJSON), chat.CreatedAt,
	)
	return err
}

// ListChatsByUser returns a user's chat history, newest first.
func (s *SQLiteStorage) ListChatsByUser(ctx context.Context, userID string, limit int) ([]*models.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, question, answer, citations, created_at
		 FROM chats WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.ChatRecord
	for rows.Next() {
		var chat models.ChatRecord
		var citationsJSON sql.NullString
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Question, &chat.Answer, &citationsJSON, &chat.CreatedAt); err != nil {
			return nil, err
		}
		if citationsJSON.Valid && citationsJSON.String != "" {
			_ = json.Unmarshal([]byte(citationsJSON.String), &chat.Citations)
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

// CountFiles returns the total number of files.
func (s *SQLiteStorage) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
