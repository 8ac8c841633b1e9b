package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8370, cfg.Server.Port)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 600, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.Equal(t, "memory", cfg.Session.Storage)
	assert.Equal(t, 10, cfg.Session.MaxMessages)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
data_dir: /tmp/scout-data
server:
  port: 9000
ollama:
  chat_model: mistral
index:
  chunk_size: 400
  chunk_overlap: 50
session:
  storage: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/scout-data", cfg.DataDir)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "mistral", cfg.Ollama.ChatModel)
	assert.Equal(t, 400, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap)
	assert.Equal(t, "sqlite", cfg.Session.Storage)
	// Untouched values keep defaults.
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
	assert.Equal(t, filepath.Join("/tmp/scout-data", "logs", "filescout.log"), cfg.Logging.File)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "qwen2.5")
	t.Setenv("SESSION_STORAGE", "sqlite")
	t.Setenv("FILESCOUT_PORT", "7777")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, "qwen2.5", cfg.Ollama.ChatModel)
	assert.Equal(t, "sqlite", cfg.Session.Storage)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestInvalidOverlapFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// Overlap >= chunk size would make the splitter loop forever.
	require.NoError(t, os.WriteFile(path, []byte("index:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Less(t, cfg.Index.ChunkOverlap, cfg.Index.ChunkSize)
}

func TestUnknownSessionStorageFallsBack(t *testing.T) {
	t.Setenv("SESSION_STORAGE", "redis")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Session.Storage)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data/fs"
	assert.Equal(t, "/data/fs/catalog.db", cfg.CatalogPath())
	assert.Equal(t, "/data/fs/keyword.snapshot", cfg.KeywordSnapshotPath())
	assert.Equal(t, "/data/fs/vectors.snapshot", cfg.VectorSnapshotPath())
	assert.Equal(t, "/data/fs/filescout.lock", cfg.LockPath())
}
