package indexstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/vectorindex"
)

const (
	indexExt      = ".index"
	chunksExt     = ".chunks"
	tmpExt        = ".tmp"
	fixedKey      = "default"
	chunksMagic   = "pdfrag-chunks"
	chunksVersion = 1
)

// errArtifactAbsent means at least one file of the pair is missing
var errArtifactAbsent = errors.New("artifact absent")

// Entry is a built or loaded index together with the chunks its positions refer to.
// Index.Len() == len(Chunks) and position i belongs to Chunks[i].
type Entry struct {
	Key    string
	Index  vectorindex.Index
	Chunks []string
}

type Options struct {
	Dir          string
	ChunkSize    int
	ChunkOverlap int
	// FixedKey stores every document under one artifact pair instead of keying by content hash.
	FixedKey bool
}

// Store builds vector indexes for documents and caches them in memory and on disk.
type Store struct {
	opts      Options
	embedder  embeddings.Embedder
	backend   vectorindex.Backend
	extractor parser.TextExtractor

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewStore(opts Options, embedder embeddings.Embedder, backend vectorindex.Backend, extractor parser.TextExtractor) (*Store, error) {
	if err := chunker.Validate(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Store{
		opts:      opts,
		embedder:  embedder,
		backend:   backend,
		extractor: extractor,
		entries:   make(map[string]*Entry),
	}, nil
}

// Key returns the artifact key for document bytes
func (s *Store) Key(data []byte) string {
	if s.opts.FixedKey {
		return fixedKey
	}
	return helper.ContentHash(data)
}

// Paths returns the index and chunk file paths for key
func (s *Store) Paths(key string) (indexPath, chunksPath string) {
	base := filepath.Join(s.opts.Dir, key)
	return base + indexExt, base + chunksExt
}

// BuildOrLoad returns the index for the document at docPath, loading the persisted pair when both
// files exist and building (then persisting) it otherwise. Calls for the same key share one build.
func (s *Store) BuildOrLoad(ctx context.Context, docPath string) (*Entry, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	key := s.Key(data)
	if e := s.cached(key); e != nil {
		return e, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if e := s.cached(key); e != nil {
			return e, nil
		}
		e, err := s.loadOrBuild(ctx, key, data)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.entries[key] = e
		s.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Remove drops the document's in-memory entry and deletes its artifact pair.
func (s *Store) Remove(docPath string) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	key := s.Key(data)

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	return removeFiles(s.Paths(key))
}

func (s *Store) cached(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key]
}

func (s *Store) loadOrBuild(ctx context.Context, key string, data []byte) (*Entry, error) {
	e, err := s.load(key)
	if err == nil {
		log.Info().Str("key", key).Int("chunks", len(e.Chunks)).Msg("Loading existing index")
		return e, nil
	}
	if !errors.Is(err, errArtifactAbsent) {
		return nil, err
	}

	log.Info().Str("key", key).Msg("Building new index")
	e, err = s.build(ctx, key, data)
	if err != nil {
		return nil, err
	}
	if err := s.persist(e); err != nil {
		return nil, err
	}
	return e, nil
}

type chunksFile struct {
	Magic     string   `msgpack:"magic"`
	Version   int      `msgpack:"version"`
	Key       string   `msgpack:"key"`
	Backend   string   `msgpack:"backend"`
	Dimension int      `msgpack:"dimension"`
	Chunks    []string `msgpack:"chunks"`
}

func (s *Store) load(key string) (*Entry, error) {
	indexPath, chunksPath := s.Paths(key)
	indexOK, chunksOK := exists(indexPath), exists(chunksPath)
	if !indexOK || !chunksOK {
		if indexOK != chunksOK {
			log.Warn().Str("key", key).Bool("index", indexOK).Bool("chunks", chunksOK).Msg("Ignoring incomplete index artifact")
		}
		return nil, errArtifactAbsent
	}

	raw, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", chunksPath, err)
	}
	var file chunksFile
	if err := msgpack.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrArtifactCorrupt, chunksPath, err)
	}
	switch {
	case file.Magic != chunksMagic || file.Version != chunksVersion:
		return nil, fmt.Errorf("%w: %s is not a chunk file", models.ErrArtifactCorrupt, chunksPath)
	case file.Key != key:
		return nil, fmt.Errorf("%w: %s was built for key %s", models.ErrArtifactCorrupt, chunksPath, file.Key)
	case file.Backend != s.backend.Name():
		return nil, fmt.Errorf("%w: %s was built with the %s backend, configured %s", models.ErrArtifactCorrupt, chunksPath, file.Backend, s.backend.Name())
	}

	idx, err := s.backend.ReadFile(indexPath, file.Dimension)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errArtifactAbsent
	}
	if err != nil {
		return nil, err
	}
	if idx.Len() != len(file.Chunks) {
		return nil, fmt.Errorf("%w: index holds %d vectors for %d chunks", models.ErrArtifactCorrupt, idx.Len(), len(file.Chunks))
	}
	return &Entry{Key: key, Index: idx, Chunks: file.Chunks}, nil
}

func (s *Store) build(ctx context.Context, key string, data []byte) (*Entry, error) {
	text, err := s.extractor.ExtractText(data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyDocument
	}
	chunks, err := chunker.Chunk(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	vectors, err := embedding.EmbedBatch(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}
	dimension := len(vectors[0])
	idx, err := s.backend.New(dimension)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, vectors); err != nil {
		return nil, fmt.Errorf("failed to add vectors to index: %w", err)
	}

	log.Debug().Str("key", key).Int("chunks", len(chunks)).Int("dimension", dimension).Str("backend", s.backend.Name()).Msg("Built index")
	return &Entry{Key: key, Index: idx, Chunks: chunks}, nil
}

// persist writes both files next to their final names, then renames them into place.
// A failure leaves neither file behind.
func (s *Store) persist(e *Entry) error {
	if err := helper.CreateFolder(s.opts.Dir); err != nil {
		return err
	}
	indexPath, chunksPath := s.Paths(e.Key)
	raw, err := msgpack.Marshal(&chunksFile{
		Magic:     chunksMagic,
		Version:   chunksVersion,
		Key:       e.Key,
		Backend:   s.backend.Name(),
		Dimension: e.Index.Dimension(),
		Chunks:    e.Chunks,
	})
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}

	err = writePair(e.Index, indexPath, chunksPath, raw)
	if err != nil {
		_ = removeFiles(indexPath+tmpExt, chunksPath+tmpExt)
		_ = removeFiles(indexPath, chunksPath)
		return fmt.Errorf("failed to persist index: %w", err)
	}
	log.Debug().Str("index", indexPath).Str("chunks", chunksPath).Msg("Persisted index")
	return nil
}

func writePair(idx vectorindex.Index, indexPath, chunksPath string, chunks []byte) error {
	if err := idx.WriteFile(indexPath + tmpExt); err != nil {
		return err
	}
	if err := os.WriteFile(chunksPath+tmpExt, chunks, 0o644); err != nil {
		return err
	}
	if err := os.Rename(chunksPath+tmpExt, chunksPath); err != nil {
		return err
	}
	return os.Rename(indexPath+tmpExt, indexPath)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
