// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/storage"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	ingest   *ingest.Service
	chat     *chat.Service
	storage  storage.Storage
	config   *config.Config
	verifier *auth.Verifier
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. verifier may be nil
// when auth is disabled.
func NewServer(
	ingestSvc *ingest.Service,
	chatSvc *chat.Service,
	st storage.Storage,
	cfg *config.Config,
	verifier *auth.Verifier,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingest:   ingestSvc,
		chat:     chatSvc,
		storage:  st,
		config:   cfg,
		verifier: verifier,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.config.Auth.Enabled, s.verifier, s.config.Auth.DevUserID))

		r.Post("/api/v1/folders", s.handleCreateFolder)
		r.Get("/api/v1/folders", s.handleListFolders)
		r.Get("/api/v1/folders/{id}/files", s.handleListFiles)
		r.Post("/api/v1/folders/{id}/files", s.handleUploadFile)
		r.Get("/api/v1/files/{id}", s.handleGetFile)
		r.Post("/api/v1/files/{id}/ingest", s.handleIngestFile)
		r.Delete("/api/v1/files/{id}", s.handleDeleteFile)
		r.Post("/api/v1/chat", s.handleChat)
		r.Get("/api/v1/chats", s.handleListChats)
		r.Get("/api/v1/status", s.handleStatus)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
