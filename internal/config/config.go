// Package config loads filescout configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the engine and server.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Server  ServerConfig  `yaml:"server"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Index   IndexConfig   `yaml:"index"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OllamaConfig controls the local model endpoint.
type OllamaConfig struct {
	Host           string        `yaml:"host"`
	ChatModel      string        `yaml:"chat_model"`
	EmbedModel     string        `yaml:"embed_model"`
	HealthInterval time.Duration `yaml:"health_interval"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
}

// IndexConfig controls chunking and ingestion.
type IndexConfig struct {
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
	MaxFileSize  int64 `yaml:"max_file_size"`
	EmbedBatch   int   `yaml:"embed_batch"`
}

// SessionConfig controls conversation session storage.
type SessionConfig struct {
	// Storage is "memory" or "sqlite".
	Storage     string        `yaml:"storage"`
	MaxMessages int           `yaml:"max_messages"`
	TTL         time.Duration `yaml:"ttl"`
	SweepEvery  time.Duration `yaml:"sweep_every"`
}

// LoggingConfig mirrors logging.Config in YAML form.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	File          string `yaml:"file"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files"`
	WriteToStderr *bool  `yaml:"write_to_stderr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".filescout"),
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8370,
		},
		Ollama: OllamaConfig{
			Host:           "http://localhost:11434",
			ChatModel:      "llama3.2",
			EmbedModel:     "nomic-embed-text",
			HealthInterval: 30 * time.Second,
			HealthTimeout:  5 * time.Second,
		},
		Index: IndexConfig{
			ChunkSize:    600,
			ChunkOverlap: 100,
			MaxFileSize:  10 * 1024 * 1024,
			EmbedBatch:   20,
		},
		Session: SessionConfig{
			Storage:     "memory",
			MaxMessages: 10,
			TTL:         24 * time.Hour,
			SweepEvery:  time.Hour,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, and fills in defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overrides config values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("FILESCOUT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FILESCOUT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.Host = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Ollama.ChatModel = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		c.Ollama.EmbedModel = v
	}
	if v := os.Getenv("SESSION_STORAGE"); v != "" {
		c.Session.Storage = v
	}
	if v := os.Getenv("FILESCOUT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// applyDefaults fills zero values after file and env merging.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Ollama.Host == "" {
		c.Ollama.Host = d.Ollama.Host
	}
	if c.Ollama.ChatModel == "" {
		c.Ollama.ChatModel = d.Ollama.ChatModel
	}
	if c.Ollama.EmbedModel == "" {
		c.Ollama.EmbedModel = d.Ollama.EmbedModel
	}
	if c.Ollama.HealthInterval <= 0 {
		c.Ollama.HealthInterval = d.Ollama.HealthInterval
	}
	if c.Ollama.HealthTimeout <= 0 {
		c.Ollama.HealthTimeout = d.Ollama.HealthTimeout
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = d.Index.ChunkSize
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		c.Index.ChunkOverlap = d.Index.ChunkOverlap
	}
	if c.Index.MaxFileSize <= 0 {
		c.Index.MaxFileSize = d.Index.MaxFileSize
	}
	if c.Index.EmbedBatch <= 0 {
		c.Index.EmbedBatch = d.Index.EmbedBatch
	}
	if c.Session.Storage != "sqlite" {
		c.Session.Storage = "memory"
	}
	if c.Session.MaxMessages <= 0 {
		c.Session.MaxMessages = d.Session.MaxMessages
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = d.Session.TTL
	}
	if c.Session.SweepEvery <= 0 {
		c.Session.SweepEvery = d.Session.SweepEvery
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if c.Logging.MaxFiles <= 0 {
		c.Logging.MaxFiles = d.Logging.MaxFiles
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "logs", "filescout.log")
	}
}

// CatalogPath returns the SQLite catalog location under the data dir.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// SessionDBPath returns the persistent session store location.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// KeywordSnapshotPath returns the keyword index snapshot location.
func (c *Config) KeywordSnapshotPath() string {
	return filepath.Join(c.DataDir, "keyword.snapshot")
}

// VectorSnapshotPath returns the vector index snapshot location.
func (c *Config) VectorSnapshotPath() string {
	return filepath.Join(c.DataDir, "vectors.snapshot")
}

// LockPath returns the data directory lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "filescout.lock")
}
