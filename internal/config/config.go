package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/models"
)

const (
	defaultOllamaURL      = "http://localhost:11434"
	defaultInferenceModel = "tinyllama"
	defaultEmbeddingModel = "all-minilm"
	defaultTimeoutSecs    = 120
	defaultBatchSize      = 512
	defaultTopK           = 2
	defaultArtifactDir    = ".pdfrag"

	ArtifactKeyContent = "content"
	ArtifactKeyFixed   = "fixed"

	BackendFlat    = "flat"
	BackendChromem = "chromem"
)

type Config struct {
	LLM      LLMConfig `yaml:"llm"`
	EmbedLLM LLMConfig `yaml:"embed_llm"`
	RAG      RAGConfig `yaml:"rag"`
	Log      LogConfig `yaml:"log"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
	BatchSize   int     `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	TopK            int    `yaml:"top_k"`
	MaxContextChars int    `yaml:"max_context_chars"`
	ArtifactDir     string `yaml:"artifact_dir"`
	ArtifactKey     string `yaml:"artifact_key"`
	IndexBackend    string `yaml:"index_backend"`
	Compress        bool   `yaml:"compress"`
	EncryptionKey   string `yaml:"encryption_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Timeout is the per-request deadline for the model, zero means none
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LoadConfig reads the yaml file at path. A missing file yields the defaults.
// Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     defaultOllamaURL,
			Model:       defaultInferenceModel,
			TimeoutSecs: defaultTimeoutSecs,
		},
		EmbedLLM: LLMConfig{
			BaseURL:   defaultOllamaURL,
			Model:     defaultEmbeddingModel,
			BatchSize: defaultBatchSize,
		},
		RAG: RAGConfig{
			ChunkSize:       chunker.DefaultSize,
			ChunkOverlap:    chunker.DefaultOverlap,
			TopK:            defaultTopK,
			MaxContextChars: models.MaxContextChars,
			ArtifactDir:     defaultArtifactDir,
			ArtifactKey:     ArtifactKeyContent,
			IndexBackend:    BackendFlat,
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.LLM.BaseURL = host
		cfg.EmbedLLM.BaseURL = host
	}
	if model := os.Getenv("PDFRAG_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if model := os.Getenv("PDFRAG_EMBED_MODEL"); model != "" {
		cfg.EmbedLLM.Model = model
	}
}

// applyDefaults fills fields a partial config file left empty
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = def.EmbedLLM.BaseURL
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = def.EmbedLLM.Model
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = def.EmbedLLM.BatchSize
	}
	if cfg.RAG.MaxContextChars == 0 {
		cfg.RAG.MaxContextChars = def.RAG.MaxContextChars
	}
	if cfg.RAG.ArtifactDir == "" {
		cfg.RAG.ArtifactDir = def.RAG.ArtifactDir
	}
	if cfg.RAG.ArtifactKey == "" {
		cfg.RAG.ArtifactKey = def.RAG.ArtifactKey
	}
	if cfg.RAG.IndexBackend == "" {
		cfg.RAG.IndexBackend = def.RAG.IndexBackend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// Validate reports models.ErrInvalidConfiguration for values no component can run with.
func (c *Config) Validate() error {
	if err := chunker.Validate(c.RAG.ChunkSize, c.RAG.ChunkOverlap); err != nil {
		return err
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfiguration, c.RAG.TopK)
	}
	if c.RAG.MaxContextChars < 0 {
		return fmt.Errorf("%w: max_context_chars must not be negative", models.ErrInvalidConfiguration)
	}
	if c.LLM.TimeoutSecs < 0 {
		return fmt.Errorf("%w: llm timeout_secs must not be negative", models.ErrInvalidConfiguration)
	}
	switch c.RAG.ArtifactKey {
	case ArtifactKeyContent, ArtifactKeyFixed:
	default:
		return fmt.Errorf("%w: unknown artifact_key %q", models.ErrInvalidConfiguration, c.RAG.ArtifactKey)
	}
	switch c.RAG.IndexBackend {
	case BackendFlat, BackendChromem:
	default:
		return fmt.Errorf("%w: unknown index_backend %q", models.ErrInvalidConfiguration, c.RAG.IndexBackend)
	}
	if k := len(c.RAG.EncryptionKey); k != 0 && k != 32 {
		return fmt.Errorf("%w: encryption_key must be 32 bytes, got %d", models.ErrInvalidConfiguration, k)
	}
	return nil
}
