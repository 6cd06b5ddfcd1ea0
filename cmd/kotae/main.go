// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Import.Enabled {
		importWatcher := newImportWatcher(cfg, components, logger, debugMode)
		if err := importWatcher.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start import watcher", zap.Error(err))
		}
		importWatcher.SyncExistingFiles()
		defer importWatcher.Stop()
	}

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		verifier = auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.KeyTTLSeconds)
	}

	srv := server.NewServer(
		components.Ingest,
		components.Chat,
		components.Storage,
		cfg,
		verifier,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newImportWatcher builds the import-directory watcher: dropped .txt files
// are uploaded into the import folder for the dev identity and ingested.
func newImportWatcher(cfg *config.Config, components *Components, logger *zap.Logger, debugMode bool) *watcher.Watcher {
	opts := []watcher.Option{}
	if debugMode {
		opts = append(opts, watcher.WithLogger(logger))
	}
	return watcher.NewWatcher(cfg.Import.Directory, func(path string) {
		ctx := context.Background()
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("import read failed", zap.String("path", path), zap.Error(err))
			return
		}
		folder, err := ensureFolder(ctx, components.Storage, cfg.Auth.DevUserID, cfg.Import.FolderName)
		if err != nil {
			logger.Warn("import folder lookup failed", zap.Error(err))
			return
		}
		file, err := components.Ingest.Upload(ctx, cfg.Auth.DevUserID, folder.ID, ingest.SanitizeName(filepath.Base(path)), data)
		if err != nil {
			logger.Warn("import upload failed", zap.String("path", path), zap.Error(err))
			return
		}
		if err := components.Ingest.IngestFile(ctx, file.ID, cfg.Auth.DevUserID); err != nil {
			logger.Warn("import ingest failed", zap.String("path", path), zap.Error(err))
		}
	}, opts...)
}

// ensureFolder finds the caller's folder by name, creating a private one if
// it does not exist.
func ensureFolder(ctx context.Context, st storage.Storage, callerID, name string) (*models.Folder, error) {
	folders, err := st.ListFolders(ctx, callerID)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if f.Name == name && f.OwnerID == callerID {
			return f, nil
		}
	}
	folder := &models.Folder{
		ID:         uuid.New().String(),
		Name:       name,
		OwnerID:    callerID,
		Visibility: models.VisibilityPrivate,
	}
	if err := st.CreateFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	folderName := fs.String("folder", "imported", "target folder name (created if missing)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Failed to read file: %v\n", err)
		os.Exit(1)
	}
	folder, err := ensureFolder(ctx, components.Storage, cfg.Auth.DevUserID, *folderName)
	if err != nil {
		fmt.Printf("Failed to resolve folder: %v\n", err)
		os.Exit(1)
	}
	file, err := components.Ingest.Upload(ctx, cfg.Auth.DevUserID, folder.ID, ingest.SanitizeName(filepath.Base(path)), data)
	if err != nil {
		fmt.Printf("Upload failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Ingest.IngestFile(ctx, file.ID, cfg.Auth.DevUserID); err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("File ingested: %s (folder %q)\n", file.ID, folder.Name)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := askViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		printChatResponse(resp)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	resp, err := components.Chat.Ask(context.Background(), cfg.Auth.DevUserID, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	printChatResponse(resp)
}

func askViaHTTP(serverURL, question string) (*chat.Response, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response chat.Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func printChatResponse(resp *chat.Response) {
	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range resp.Citations {
			fmt.Printf("  %s/%s lines %d-%d\n", c.Folder, c.File, c.Lines[0], c.Lines[1])
		}
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var status map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		printStatus(status)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	fileCount, err := components.Storage.CountFiles(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count files failed: %v\n", err)
		os.Exit(1)
	}
	chunkCount, err := components.Storage.CountChunks(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
		os.Exit(1)
	}
	status := map[string]any{
		"files":  fileCount,
		"chunks": chunkCount,
	}
	if diskBytes, err := blob.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BlobDir); err == nil {
		status["disk_usage_bytes"] = diskBytes
	}
	printStatus(status)
}

func printStatus(status map[string]any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

// Components holds initialized services.
type Components struct {
	Storage storage.Storage
	Blobs   blob.Store
	Vectors vectorstore.Store
	Ingest  *ingest.Service
	Chat    *chat.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	blobs, err := blob.NewFSStore(cfg.Storage.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" {
		client, err := embedding.NewClient(embedding.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = client
	} else {
		logger.Warn("no embedding API key configured, using mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	var model llm.ChatModel
	if cfg.Chat.APIKey != "" {
		client, err := llm.NewClient(llm.Config{
			APIKey:  cfg.Chat.APIKey,
			BaseURL: cfg.Chat.BaseURL,
			Model:   cfg.Chat.Model,
			Timeout: time.Duration(cfg.Chat.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat model: %w", err)
		}
		model = client
	} else {
		logger.Warn("no chat API key configured, using mock model")
		model = &llm.MockModel{Content: `{"answer":"No language model is configured.","citations":[]}`}
	}

	vectors, err := newVectorStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := chunker.Options{Size: cfg.Ingest.ChunkSize, Overlap: cfg.Ingest.ChunkOverlap}
	ingestOpts := []ingest.Option{}
	chatOpts := []chat.Option{}
	if debug {
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
		chatOpts = append(chatOpts, chat.WithLogger(logger))
	}
	ingestSvc := ingest.NewService(store, blobs, embedder, vectors, opts, ingestOpts...)
	chatSvc := chat.NewService(store, embedder, vectors, model, cfg.Chat.TopK, chatOpts...)

	return &Components{
		Storage: store,
		Blobs:   blobs,
		Vectors: vectors,
		Ingest:  ingestSvc,
		Chat:    chatSvc,
	}, nil
}

// newVectorStore builds the configured vector store, falling back to memory
// when the remote index cannot be reached.
func newVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	if cfg.Vector.StoreType != "http" {
		return vectorstore.NewMemoryStore(), nil
	}
	var generation vectorstore.Generation
	if g, ok := vectorstore.ParseGeneration(cfg.Vector.Generation); ok {
		generation = g
	}
	store, err := vectorstore.NewHTTPStore(vectorstore.HTTPConfig{
		BaseURL:    cfg.Vector.BaseURL,
		APIKey:     cfg.Vector.APIKey,
		Generation: generation,
		Timeout:    time.Duration(cfg.Vector.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("failed to create remote vector store, falling back to memory", zap.Error(err))
		return vectorstore.NewMemoryStore(), nil
	}
	return store, nil
}

func printUsage() {
	fmt.Println(`kotae - Chat with your documents

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ingest [flags] <file>     Upload and ingest a text file
  kotae ask [flags] <question>    Ask a question over ingested documents
  kotae status [flags]            Show storage status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --folder string    Target folder name, created if missing (default: imported)

Ask Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.

Examples:
  kotae server
  kotae ingest notes.txt
  kotae ask "what do my notes say about the quarterly plan?"
  kotae ask "/chat hello"
  kotae status`)
}
