package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
)

func (s *Server) identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

type createFolderRequest struct {
	Name       string            `json:"name"`
	Visibility models.Visibility `json:"visibility"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPrivate
	}
	if req.Visibility != models.VisibilityPublic && req.Visibility != models.VisibilityPrivate {
		s.respondError(w, http.StatusBadRequest, "visibility must be public or private")
		return
	}
	caller := s.identity(r)
	folder := &models.Folder{
		ID:         uuid.New().String(),
		Name:       req.Name,
		OwnerID:    caller.UserID,
		Visibility: req.Visibility,
	}
	if err := s.storage.CreateFolder(r.Context(), folder); err != nil {
		s.logger.Error("create folder failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, folder)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	caller := s.identity(r)
	folders, err := s.storage.ListFolders(r.Context(), caller.UserID)
	if err != nil {
		s.logger.Error("list folders failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if folders == nil {
		folders = []*models.Folder{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// visibleFolder loads a folder and enforces read visibility: public folders
// are readable by anyone, private ones only by their owner.
func (s *Server) visibleFolder(r *http.Request, folderID string) (*models.Folder, error) {
	folder, err := s.storage.GetFolder(r.Context(), folderID)
	if err != nil {
		return nil, err
	}
	caller := s.identity(r)
	if folder.Visibility != models.VisibilityPublic && folder.OwnerID != caller.UserID {
		return nil, apperr.ErrForbidden
	}
	return folder, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder, err := s.visibleFolder(r, chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	files, err := s.storage.ListFilesByFolder(r.Context(), folder.ID)
	if err != nil {
		s.logger.Error("list files failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []*models.File{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"files": files})
}

type uploadFileRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	var req uploadFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := ingest.SanitizeName(req.Name)
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	caller := s.identity(r)
	file, err := s.ingest.Upload(r.Context(), caller.UserID, chi.URLParam(r, "id"), name, []byte(req.Content))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, file)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.storage.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	caller := s.identity(r)
	if file.Visibility != models.VisibilityPublic && file.OwnerID != caller.UserID {
		s.respondAppError(w, apperr.ErrForbidden)
		return
	}
	s.respondJSON(w, http.StatusOK, file)
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := s.identity(r)
	s.logger.Debug("ingest request", zap.String("file_id", id), zap.String("caller", caller.UserID))
	if err := s.ingest.IngestFile(r.Context(), id, caller.UserID); err != nil {
		s.logger.Error("ingestion failed", zap.String("file_id", id), zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.FileStatusReady})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := s.identity(r)
	if err := s.ingest.DeleteFile(r.Context(), id, caller.UserID); err != nil {
		s.logger.Error("deletion failed", zap.String("file_id", id), zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	caller := s.identity(r)
	resp, err := s.chat.Ask(r.Context(), caller.UserID, req.Question)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	caller := s.identity(r)
	chats, err := s.chat.History(r.Context(), caller.UserID, limit)
	if err != nil {
		s.logger.Error("list chats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if chats == nil {
		chats = []*models.ChatRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileCount, err := s.storage.CountFiles(ctx)
	if err != nil {
		s.logger.Error("status: count files failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{
		"files":  fileCount,
		"chunks": chunkCount,
		"config": map[string]any{
			"chunk_size":           s.config.Ingest.ChunkSize,
			"chunk_overlap":        s.config.Ingest.ChunkOverlap,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"top_k":                s.config.Chat.TopK,
			"vector_store_type":    s.config.Vector.StoreType,
		},
	}
	diskBytes, err := blob.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BlobDir)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondAppError maps pipeline errors to HTTP statuses via the shared
// taxonomy.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	s.respondError(w, apperr.Status(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
