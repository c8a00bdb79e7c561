package vectorindex

import "context"

// Neighbor is one search hit: the position the vector was added at and its distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

// Index is an append-only vector index. Positions are assigned in insertion order starting at 0.
type Index interface {
	Dimension() int
	Len() int
	// Add appends vectors in order.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns, per query, up to k neighbors ordered nearest first.
	Search(ctx context.Context, queries [][]float32, k int) ([][]Neighbor, error)
	// WriteFile persists the index to a single file at path.
	WriteFile(path string) error
}

// Backend creates empty indexes and reads persisted ones.
type Backend interface {
	Name() string
	New(dimension int) (Index, error)
	// ReadFile loads an index written by WriteFile. Decode failures wrap models.ErrArtifactCorrupt.
	ReadFile(path string, dimension int) (Index, error)
}
