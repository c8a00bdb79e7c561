package chromemdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/vectorindex"
)

const collectionName = "chunks"

// VectorDBManager wraps an in-memory chromem-go collection as a vectorindex.Index.
// Documents are keyed by their insertion position. chromem ranks by cosine similarity,
// so reported distances are 1 - similarity.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dimension     int
	compress      bool
	encryptionKey string
}

var _ vectorindex.Index = (*VectorDBManager)(nil)

// NewVectorDBManager initializes a new vector database manager
func NewVectorDBManager(dimension int, compress bool, encryptionKey string) (*VectorDBManager, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	return &VectorDBManager{
		db:            db,
		collection:    c,
		dimension:     dimension,
		compress:      compress,
		encryptionKey: encryptionKey,
	}, nil
}

// every document carries its embedding, chromem must never call out to embed content itself
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be precomputed")
}

func (m *VectorDBManager) Dimension() int { return m.dimension }

func (m *VectorDBManager) Len() int { return m.collection.Count() }

// Add appends vectors; the content field holds the position so chromem accepts the document
func (m *VectorDBManager) Add(ctx context.Context, vectors [][]float32) error {
	start := m.Len()
	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		if len(v) != m.dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), m.dimension)
		}
		id := strconv.Itoa(start + i)
		docs[i] = chromem.Document{
			ID:        id,
			Content:   id,
			Embedding: v,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

func (m *VectorDBManager) Search(ctx context.Context, queries [][]float32, k int) ([][]vectorindex.Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidConfiguration, k)
	}
	n := m.Len()
	k = min(k, n)
	results := make([][]vectorindex.Neighbor, len(queries))
	if k == 0 {
		return results, nil
	}
	for qi, q := range queries {
		if len(q) != m.dimension {
			return nil, fmt.Errorf("query %d has dimension %d, index expects %d", qi, len(q), m.dimension)
		}
		// chromem scores concurrently, so equal similarities come back in any order.
		// Rank every document and cut to k after ordering ties by position.
		hits, err := m.collection.QueryEmbedding(ctx, q, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %v", err)
		}
		neighbors := make([]vectorindex.Neighbor, 0, len(hits))
		for _, h := range hits {
			pos, err := strconv.Atoi(h.ID)
			if err != nil {
				return nil, fmt.Errorf("unexpected document id %q", h.ID)
			}
			neighbors = append(neighbors, vectorindex.Neighbor{Position: pos, Distance: 1 - h.Similarity})
		}
		slices.SortStableFunc(neighbors, byDistanceThenPosition)
		results[qi] = neighbors[:min(k, len(neighbors))]
	}
	return results, nil
}

func byDistanceThenPosition(a, b vectorindex.Neighbor) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.Position, b.Position)
}

// WriteFile exports the collection, gzip-compressed and AES-encrypted when configured
func (m *VectorDBManager) WriteFile(path string) error {
	log.Debug().Str("path", path).Bool("compress", m.compress).Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")
	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, collectionName); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Backend creates and imports chromem-backed indexes
type Backend struct {
	Compress      bool
	EncryptionKey string
}

var _ vectorindex.Backend = Backend{}

func (b Backend) Name() string { return "chromem" }

func (b Backend) New(dimension int) (vectorindex.Index, error) {
	return NewVectorDBManager(dimension, b.Compress, b.EncryptionKey)
}

func (b Backend) ReadFile(path string, dimension int) (vectorindex.Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	m, err := NewVectorDBManager(dimension, b.Compress, b.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if err := m.db.ImportFromFile(path, b.EncryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("%w: import %s: %v", models.ErrArtifactCorrupt, path, err)
	}
	c := m.db.GetCollection(collectionName, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: collection %q not found in %s", models.ErrArtifactCorrupt, collectionName, path)
	}
	m.collection = c
	return m, nil
}
