package config

import (
	"net"
	"os"
	"strconv"
	"time"
)

// DefaultFormats are the extraction formats enabled when none are configured.
var DefaultFormats = []string{"pdf", "image", "video", "office", "text"}

const defaultSystemPrompt = "You are a helpful assistant answering questions about the user's own documents. " +
	"Use the provided context to answer. If the context does not contain the answer, say you don't know."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Minute
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 200 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/docuchat/data/db/catalog.db"
	}
	if cfg.Storage.BlobURL == "" {
		cfg.Storage.BlobURL = "file:///usr/local/var/docuchat/data/blobs"
	}
	if cfg.Storage.PublicBaseURL == "" {
		host := cfg.Server.Host
		if host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		cfg.Storage.PublicBaseURL = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "sqlite"
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "/usr/local/var/docuchat/data/db/vectors.db"
	}
	if cfg.Keyword.IndexPath == "" {
		cfg.Keyword.IndexPath = "/usr/local/var/docuchat/data/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Generation.Host == "" {
		cfg.Generation.Host = "https://api.openai.com/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-3.5-turbo"
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.7
	}
	if cfg.Generation.SystemPrompt == "" {
		cfg.Generation.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 200
	}
	// ChunkOverlap defaults to 0; no adjustment needed.
	if cfg.Retrieval.Strategy == "" {
		cfg.Retrieval.Strategy = "mmr"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 4
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = 20
	}
	if cfg.Retrieval.Lambda == 0 {
		cfg.Retrieval.Lambda = 0.5
	}
	if cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Extraction.Formats == nil {
		cfg.Extraction.Formats = append([]string(nil), DefaultFormats...)
	}
	if cfg.Extraction.MinTextChars == 0 {
		cfg.Extraction.MinTextChars = 10
	}
	if cfg.Extraction.TesseractPath == "" {
		cfg.Extraction.TesseractPath = "tesseract"
	}
	if cfg.Extraction.TesseractLang == "" {
		cfg.Extraction.TesseractLang = "eng"
	}
	if cfg.Extraction.PdftoppmPath == "" {
		cfg.Extraction.PdftoppmPath = "pdftoppm"
	}
	if cfg.Extraction.DPI == 0 {
		cfg.Extraction.DPI = 300
	}
	if cfg.Extraction.FFmpegPath == "" {
		cfg.Extraction.FFmpegPath = "ffmpeg"
	}
	if cfg.Extraction.STTHost == "" {
		cfg.Extraction.STTHost = "https://api.openai.com/v1"
	}
	if cfg.Extraction.STTModel == "" {
		cfg.Extraction.STTModel = "whisper-1"
	}
	if cfg.Extraction.STTAPIKey == "" {
		cfg.Extraction.STTAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Pipeline.ExtractTimeout == 0 {
		cfg.Pipeline.ExtractTimeout = 5 * time.Minute
	}
	if cfg.Pipeline.EmbedTimeout == 0 {
		cfg.Pipeline.EmbedTimeout = 2 * time.Minute
	}
	if cfg.Pipeline.GenerateTimeout == 0 {
		cfg.Pipeline.GenerateTimeout = time.Minute
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 10000
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 24 * time.Hour
	}
	if cfg.Session.HistoryTurns == 0 {
		cfg.Session.HistoryTurns = 10
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".mp4", ".docx", ".xlsx", ".pptx", ".txt", ".md"}
	}
}
