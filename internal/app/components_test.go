package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/generation"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/internal/models"
)

type echoGenerator struct{}

func (echoGenerator) Complete(_ context.Context, req generation.Request) (string, error) {
	return "echo: " + req.Query, nil
}

func (echoGenerator) Condense(_ context.Context, _ []models.Turn, question string) (string, error) {
	return question, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.BlobURL = "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_")
	cfg.Vector.Backend = "memory"
	cfg.Vector.SnapshotPath = filepath.Join(dir, "vectors.snap")
	cfg.Keyword.Enabled = true
	cfg.Keyword.IndexPath = ""
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 64
	cfg.Retrieval.Strategy = "hybrid"
	cfg.Extraction.ScratchDir = filepath.Join(dir, "scratch")
	return cfg
}

func TestBuild_IngestAndQuery(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c, err := Build(ctx, cfg, nil, WithGenerator(echoGenerator{}))
	require.NoError(t, err)

	res, err := c.Pipeline.Ingest(ctx, "alice", ingest.Upload{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Body:        strings.NewReader("The invoice total is 42 euros."),
	})
	require.NoError(t, err)
	assert.True(t, res.Searchable)

	ans, err := c.Executor.Query(ctx, "alice", "", "what is the total?")
	require.NoError(t, err)
	assert.Equal(t, "echo: what is the total?", ans.Content)
	assert.NotEmpty(t, ans.Sources)

	deps := c.ServerDeps()
	assert.NotNil(t, deps.Documents)
	assert.NotNil(t, deps.Chat)
	assert.Equal(t, 1, deps.Sessions.Len())

	c.Close()
	info, err := os.Stat(cfg.Vector.SnapshotPath)
	require.NoError(t, err, "snapshot written on close")
	assert.Positive(t, info.Size())
}

func TestBuild_SnapshotReloaded(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c, err := Build(ctx, cfg, nil, WithGenerator(echoGenerator{}))
	require.NoError(t, err)
	_, err = c.Pipeline.Ingest(ctx, "alice", ingest.Upload{
		Filename: "a.txt", ContentType: "text/plain", Body: strings.NewReader("persisted vectors"),
	})
	require.NoError(t, err)
	c.Close()

	c2, err := Build(ctx, cfg, nil, WithGenerator(echoGenerator{}))
	require.NoError(t, err)
	defer c2.Close()
	stats, err := c2.Vectors.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Collections)
	assert.Equal(t, 1, stats.Vectors)
}

func TestBuild_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown vector backend", func(c *config.Config) { c.Vector.Backend = "faiss" }},
		{"unknown provider", func(c *config.Config) { c.Embedding.Provider = "word2vec" }},
		{"unknown format", func(c *config.Config) { c.Extraction.Formats = []string{"pdf", "cad"} }},
		{"bad chunking", func(c *config.Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize + 1 }},
		{"unknown strategy", func(c *config.Config) { c.Retrieval.Strategy = "random" }},
		{"hybrid without keyword index", func(c *config.Config) { c.Keyword.Enabled = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, nil, WithGenerator(echoGenerator{}))
			assert.Error(t, err)
		})
	}
}
