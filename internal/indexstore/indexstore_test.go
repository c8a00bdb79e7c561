package indexstore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/models"
	"pdf-rag/internal/vectorindex"
)

// countingEmbedder produces deterministic character-position vectors and counts batch calls.
type countingEmbedder struct {
	dims  int
	calls atomic.Int32
}

func (e *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *countingEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for i, ch := range text {
		vec[(int(ch)+i)%e.dims] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / math.Sqrt(norm))
		}
	}
	return vec
}

// textExtractor treats document bytes as already-extracted text
type textExtractor struct{}

func (textExtractor) ExtractText(data []byte) (string, error) { return string(data), nil }

type failingExtractor struct{}

func (failingExtractor) ExtractText(_ []byte) (string, error) { return "", errors.New("not a pdf") }

func newTestStore(t *testing.T, dir string, emb *countingEmbedder, backend vectorindex.Backend) *Store {
	t.Helper()
	s, err := NewStore(Options{Dir: dir, ChunkSize: 4, ChunkOverlap: 2}, emb, backend, textExtractor{})
	require.NoError(t, err)
	return s
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildOrLoad_BuildsAndPersists(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "ABCDEFGHIJ")
	emb := &countingEmbedder{dims: 8}
	s := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{})

	e, err := s.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABCD", "CDEF", "EFGH", "GHIJ"}, e.Chunks)
	assert.Equal(t, len(e.Chunks), e.Index.Len())
	assert.Equal(t, 8, e.Index.Dimension())
	assert.EqualValues(t, 1, emb.calls.Load())

	indexPath, chunksPath := s.Paths(e.Key)
	assert.FileExists(t, indexPath)
	assert.FileExists(t, chunksPath)
	assert.NoFileExists(t, indexPath+tmpExt)
	assert.NoFileExists(t, chunksPath+tmpExt)

	again, err := s.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.EqualValues(t, 1, emb.calls.Load())
}

func TestBuildOrLoad_ReloadDoesNotEmbed(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "The capital of France is Paris. The capital of Italy is Rome.")

	first := newTestStore(t, artifacts, &countingEmbedder{dims: 16}, vectorindex.FlatBackend{})
	built, err := first.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)

	emb := &countingEmbedder{dims: 16}
	second := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{})
	loaded, err := second.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, built.Chunks, loaded.Chunks)
	assert.Equal(t, built.Index.Len(), loaded.Index.Len())
	assert.EqualValues(t, 0, emb.calls.Load())
}

func TestBuildOrLoad_EmptyDocument(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	emb := &countingEmbedder{dims: 8}
	s := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{})

	for _, content := range []string{"", "  \n\t "} {
		doc := writeDoc(t, docs, "empty.pdf", content)
		_, err := s.BuildOrLoad(context.Background(), doc)
		assert.ErrorIs(t, err, models.ErrEmptyDocument)
	}

	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.EqualValues(t, 0, emb.calls.Load())
}

func TestBuildOrLoad_PartialArtifactRebuilds(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "ABCDEFGHIJ")

	e, err := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}).BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	indexPath, chunksPath := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}).Paths(e.Key)
	require.NoError(t, os.Remove(indexPath))

	emb := &countingEmbedder{dims: 8}
	rebuilt, err := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{}).BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, e.Chunks, rebuilt.Chunks)
	assert.EqualValues(t, 1, emb.calls.Load())
	assert.FileExists(t, indexPath)
	assert.FileExists(t, chunksPath)
}

func TestBuildOrLoad_CorruptArtifact(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "ABCDEFGHIJ")

	s := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{})
	e, err := s.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	indexPath, chunksPath := s.Paths(e.Key)

	t.Run("chunk file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(chunksPath, []byte("garbage"), 0o644))
		_, err := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}).BuildOrLoad(context.Background(), doc)
		assert.ErrorIs(t, err, models.ErrArtifactCorrupt)
	})

	t.Run("index file", func(t *testing.T) {
		require.NoError(t, s.Remove(doc))
		_, err := s.BuildOrLoad(context.Background(), doc)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(indexPath, []byte("garbage"), 0o644))

		_, err = newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}).BuildOrLoad(context.Background(), doc)
		assert.ErrorIs(t, err, models.ErrArtifactCorrupt)
	})

	t.Run("other backend", func(t *testing.T) {
		require.NoError(t, s.Remove(doc))
		_, err := s.BuildOrLoad(context.Background(), doc)
		require.NoError(t, err)

		_, err = newTestStore(t, artifacts, &countingEmbedder{dims: 8}, chromemdb.Backend{}).BuildOrLoad(context.Background(), doc)
		assert.ErrorIs(t, err, models.ErrArtifactCorrupt)
	})
}

func TestBuildOrLoad_KeyedByContent(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	a := writeDoc(t, docs, "a.pdf", "first document text")
	b := writeDoc(t, docs, "b.pdf", "second document text")
	s := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{})

	ea, err := s.BuildOrLoad(context.Background(), a)
	require.NoError(t, err)
	eb, err := s.BuildOrLoad(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, ea.Key, eb.Key)
	assert.NotEqual(t, ea.Chunks, eb.Chunks)

	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestBuildOrLoad_FixedKeyReusesFirstDocument(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	a := writeDoc(t, docs, "a.pdf", "first document text")
	b := writeDoc(t, docs, "b.pdf", "second document text")
	emb := &countingEmbedder{dims: 8}
	s, err := NewStore(Options{Dir: artifacts, ChunkSize: 4, ChunkOverlap: 2, FixedKey: true}, emb, vectorindex.FlatBackend{}, textExtractor{})
	require.NoError(t, err)

	ea, err := s.BuildOrLoad(context.Background(), a)
	require.NoError(t, err)
	eb, err := s.BuildOrLoad(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ea.Chunks, eb.Chunks)
	assert.EqualValues(t, 1, emb.calls.Load())
}

func TestBuildOrLoad_ConcurrentCallersShareBuild(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "concurrent callers should only embed this document once")
	emb := &countingEmbedder{dims: 8}
	s := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.BuildOrLoad(context.Background(), doc)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, emb.calls.Load())
}

func TestBuildOrLoad_ChromemBackend(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "ABCDEFGHIJ")

	built, err := newTestStore(t, artifacts, &countingEmbedder{dims: 8}, chromemdb.Backend{Compress: true}).BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)

	emb := &countingEmbedder{dims: 8}
	loaded, err := newTestStore(t, artifacts, emb, chromemdb.Backend{Compress: true}).BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, built.Chunks, loaded.Chunks)
	assert.Equal(t, 4, loaded.Index.Len())
	assert.EqualValues(t, 0, emb.calls.Load())
}

func TestBuildOrLoad_Errors(t *testing.T) {
	_, err := NewStore(Options{ChunkSize: 10, ChunkOverlap: 15}, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}, textExtractor{})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	s := newTestStore(t, t.TempDir(), &countingEmbedder{dims: 8}, vectorindex.FlatBackend{})
	_, err = s.BuildOrLoad(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	artifacts := t.TempDir()
	bad, err := NewStore(Options{Dir: artifacts, ChunkSize: 4, ChunkOverlap: 2}, &countingEmbedder{dims: 8}, vectorindex.FlatBackend{}, failingExtractor{})
	require.NoError(t, err)
	_, err = bad.BuildOrLoad(context.Background(), writeDoc(t, t.TempDir(), "x.pdf", "whatever"))
	assert.ErrorContains(t, err, "not a pdf")
	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	docs, artifacts := t.TempDir(), t.TempDir()
	doc := writeDoc(t, docs, "doc.pdf", "ABCDEFGHIJ")
	emb := &countingEmbedder{dims: 8}
	s := newTestStore(t, artifacts, emb, vectorindex.FlatBackend{})

	e, err := s.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, s.Remove(doc))
	indexPath, chunksPath := s.Paths(e.Key)
	assert.NoFileExists(t, indexPath)
	assert.NoFileExists(t, chunksPath)

	_, err = s.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.EqualValues(t, 2, emb.calls.Load())
}
