package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"pdf-rag/internal/config"
)

// NewOllamaEmbedder creates an embedder backed by an Ollama embedding model
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	opts := []embeddings.Option{}
	if llmConfig.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(llmConfig.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(llm, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Lazy constructs the wrapped embedder on first use and keeps it for the life of the process.
type Lazy struct {
	once     sync.Once
	newFunc  func() (embeddings.Embedder, error)
	embedder embeddings.Embedder
	err      error
}

var _ embeddings.Embedder = (*Lazy)(nil)

func NewLazy(newFunc func() (embeddings.Embedder, error)) *Lazy {
	return &Lazy{newFunc: newFunc}
}

func (l *Lazy) get() (embeddings.Embedder, error) {
	l.once.Do(func() {
		l.embedder, l.err = l.newFunc()
		if l.err == nil {
			log.Debug().Msg("Embedding model loaded")
		}
	})
	return l.embedder, l.err
}

func (l *Lazy) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedDocuments(ctx, texts)
}

func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedQuery(ctx, text)
}

// EmbedBatch embeds texts in one call and checks the provider kept one row per input,
// all of the same non-zero dimension.
func EmbedBatch(ctx context.Context, embedder embeddings.Embedder, texts []string) ([][]float32, error) {
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if len(vectors) == 0 {
		return vectors, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedding provider returned empty vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return vectors, nil
}
