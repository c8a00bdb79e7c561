package retriever

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/indexstore"
	"pdf-rag/internal/models"
)

const DefaultTopK = 2

type Retriever struct {
	embedder embeddings.Embedder
}

func NewRetriever(embedder embeddings.Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve returns the min(topK, len(entry.Chunks)) chunks closest to question, best first.
func (r *Retriever) Retrieve(ctx context.Context, question string, entry *indexstore.Entry, topK int) ([]string, error) {
	scored, err := r.RetrieveScored(ctx, question, entry, topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, len(scored))
	for i, s := range scored {
		chunks[i] = s.Content
	}
	return chunks, nil
}

// RetrieveScored is Retrieve with the index position and distance of every chunk.
func (r *Retriever) RetrieveScored(ctx context.Context, question string, entry *indexstore.Entry, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfiguration, topK)
	}
	if len(entry.Chunks) == 0 {
		return nil, nil
	}

	vectors, err := embedding.EmbedBatch(ctx, r.embedder, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	results, err := entry.Index.Search(ctx, vectors, min(topK, len(entry.Chunks)))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results[0]))
	for _, n := range results[0] {
		if n.Position < 0 || n.Position >= len(entry.Chunks) {
			return nil, fmt.Errorf("%w: index returned position %d for %d chunks", models.ErrArtifactCorrupt, n.Position, len(entry.Chunks))
		}
		scored = append(scored, models.ScoredChunk{
			Position: n.Position,
			Distance: n.Distance,
			Content:  entry.Chunks[n.Position],
		})
	}
	log.Debug().Int("top_k", topK).Int("found", len(scored)).Msg("Retrieved context")
	return scored, nil
}
