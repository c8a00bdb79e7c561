package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/indexstore"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/retriever"
)

// IndexStore is the build-or-load step of a question
type IndexStore interface {
	BuildOrLoad(ctx context.Context, docPath string) (*indexstore.Entry, error)
}

type RAG struct {
	store     IndexStore
	retriever *retriever.Retriever
	generator *llmservice.Generator
	topK      int
}

func NewRAG(store IndexStore, retriever *retriever.Retriever, generator *llmservice.Generator, topK int) (*RAG, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfiguration, topK)
	}
	return &RAG{store: store, retriever: retriever, generator: generator, topK: topK}, nil
}

// AnswerQuestion answers question from the document at docPath.
func (r *RAG) AnswerQuestion(ctx context.Context, question, docPath string) (string, error) {
	resp, err := r.Query(ctx, question, docPath)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Query builds or loads the index, retrieves context and generates the answer, in that order.
func (r *RAG) Query(ctx context.Context, question, docPath string) (*models.PromptResponse, error) {
	entry, err := r.store.BuildOrLoad(ctx, docPath)
	if err != nil {
		return nil, err
	}

	scored, err := r.retriever.RetrieveScored(ctx, question, entry, r.topK)
	if err != nil {
		return nil, err
	}
	contextChunks := make([]string, len(scored))
	for i, s := range scored {
		contextChunks[i] = s.Content
	}

	answer, err := r.generator.Generate(ctx, question, contextChunks)
	if err != nil {
		return nil, err
	}

	log.Info().Str("document", docPath).Int("context_chunks", len(contextChunks)).Msg("Answered question")
	return &models.PromptResponse{
		Query:   question,
		Source:  strings.Join(contextChunks, models.ContextSeparator),
		Content: answer,
		Chunks:  scored,
	}, nil
}
