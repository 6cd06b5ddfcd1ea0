package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "/usr/local/var/kotae/data/blobs"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		// Project convention: overlap stays >= 200 to preserve cross-chunk context.
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = cfg.Embedding.APIKey
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-4.1-mini"
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 8
	}
	if cfg.Chat.TimeoutSeconds == 0 {
		cfg.Chat.TimeoutSeconds = 120
	}
	if cfg.Vector.StoreType == "" {
		cfg.Vector.StoreType = "memory"
	}
	if cfg.Vector.TimeoutSeconds == 0 {
		cfg.Vector.TimeoutSeconds = 30
	}
	if cfg.Auth.KeyTTLSeconds == 0 {
		cfg.Auth.KeyTTLSeconds = 3600
	}
	if cfg.Auth.DevUserID == "" {
		cfg.Auth.DevUserID = "dev-user"
	}
	if cfg.Import.FolderName == "" {
		cfg.Import.FolderName = "imported"
	}
}
