// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Vector    VectorConfig    `yaml:"vector"`
	Auth      AuthConfig      `yaml:"auth"`
	Import    ImportConfig    `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the relational database path and the blob storage root.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	BlobDir      string `yaml:"blob_dir"`
}

// IngestConfig holds chunking settings.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ChatConfig holds language-model and retrieval settings.
type ChatConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TopK           int    `yaml:"top_k"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VectorConfig holds vector index settings. StoreType selects "http" (remote
// index) or "memory" (in-process, for dev and tests). Generation selects the
// remote index API generation: "a" (namespace-keyed), "b" (global with
// metadata filter), or empty to probe once at startup.
type VectorConfig struct {
	StoreType      string `yaml:"store_type"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Generation     string `yaml:"generation"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuthConfig holds bearer-token verification settings. When Enabled is false
// every request runs as DevUserID (development identity fallback).
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Secret        string `yaml:"secret"`
	KeyTTLSeconds int    `yaml:"key_ttl_seconds"`
	DevUserID     string `yaml:"dev_user_id"`
}

// ImportConfig holds the optional local import directory watch. Plain-text
// files dropped there are uploaded and ingested into FolderName for the dev
// identity.
type ImportConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	FolderName string `yaml:"folder_name"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobDir = expandPath(cfg.Storage.BlobDir, configDir)
	if cfg.Import.Directory != "" {
		cfg.Import.Directory = expandPath(cfg.Import.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
