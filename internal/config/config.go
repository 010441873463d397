// Package config provides configuration loading and structs for the docuchat server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Vector     VectorConfig     `yaml:"vector"`
	Keyword    KeywordConfig    `yaml:"keyword"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Session    SessionConfig    `yaml:"session"`
	Inbox      InboxConfig      `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig holds the catalog database path and the blob store location.
// BlobURL is any viant/afs URL (file:///var/docuchat/blobs, mem://localhost/blobs, s3://...).
// PublicBaseURL is the server's externally visible base URL; stored uploads are handed back to
// clients as <PublicBaseURL>/blobs/<owner>/<filename>.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	BlobURL       string `yaml:"blob_url"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// VectorConfig selects the collection store backend.
type VectorConfig struct {
	Backend      string `yaml:"backend"` // memory, sqlite, pgvector
	Path         string `yaml:"path"`    // sqlite database file
	DSN          string `yaml:"dsn"`     // pgvector connection string
	SnapshotPath string `yaml:"snapshot_path"`
}

// KeywordConfig configures the Bleve chunk index used by hybrid retrieval.
type KeywordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, onnx, mock
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
	CacheSize  int    `yaml:"cache_size"`
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// GenerationConfig holds chat-completion settings.
type GenerationConfig struct {
	Host             string  `yaml:"host"`
	Model            string  `yaml:"model"`
	APIKey           string  `yaml:"api_key"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	SystemPrompt     string  `yaml:"system_prompt"`
	CondenseQuestion *bool   `yaml:"condense_question"`
}

// CondenseQuestionOrDefault returns whether follow-up questions are rewritten before retrieval;
// defaults to true when unset.
func (g *GenerationConfig) CondenseQuestionOrDefault() bool {
	if g.CondenseQuestion != nil {
		return *g.CondenseQuestion
	}
	return true
}

// ChunkingConfig holds splitter settings, measured in runes.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds query-time search settings.
type RetrievalConfig struct {
	Strategy      string  `yaml:"strategy"` // similarity, mmr, hybrid
	K             int     `yaml:"k"`
	FetchK        int     `yaml:"fetch_k"`
	Lambda        float64 `yaml:"lambda"`
	KeywordWeight float64 `yaml:"keyword_weight"`
}

// ExtractionConfig holds format and external engine settings.
type ExtractionConfig struct {
	Formats       []string `yaml:"formats"`
	MinTextChars  int      `yaml:"min_text_chars"`
	TesseractPath string   `yaml:"tesseract_path"`
	TesseractLang string   `yaml:"tesseract_lang"`
	PdftoppmPath  string   `yaml:"pdftoppm_path"`
	DPI           int      `yaml:"dpi"`
	FFmpegPath    string   `yaml:"ffmpeg_path"`
	STTHost       string   `yaml:"stt_host"`
	STTModel      string   `yaml:"stt_model"`
	STTAPIKey     string   `yaml:"stt_api_key"`
	ScratchDir    string   `yaml:"scratch_dir"`
}

// PipelineConfig holds per-stage deadlines.
type PipelineConfig struct {
	ExtractTimeout  time.Duration `yaml:"extract_timeout"`
	EmbedTimeout    time.Duration `yaml:"embed_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
}

// SessionConfig bounds the in-memory conversation store.
type SessionConfig struct {
	MaxSessions  int           `yaml:"max_sessions"`
	IdleTTL      time.Duration `yaml:"idle_ttl"`
	HistoryTurns int           `yaml:"history_turns"`
}

// InboxConfig holds drop-folder settings. Each directory contains one subdirectory per owner.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
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
	cfg.Vector.Path = expandPath(cfg.Vector.Path, configDir)
	cfg.Vector.SnapshotPath = expandPath(cfg.Vector.SnapshotPath, configDir)
	cfg.Keyword.IndexPath = expandPath(cfg.Keyword.IndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Extraction.ScratchDir = expandPath(cfg.Extraction.ScratchDir, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}
	if strings.HasPrefix(cfg.Storage.BlobURL, "./") {
		cfg.Storage.BlobURL = "file://" + filepath.Join(configDir, cfg.Storage.BlobURL)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
