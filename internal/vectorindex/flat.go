package vectorindex

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"pdf-rag/internal/models"
)

const (
	flatMagic   = "pdfrag-flat-l2"
	flatVersion = 1
)

// FlatL2 performs exhaustive search by squared Euclidean distance over row-major vectors.
type FlatL2 struct {
	dim  int
	data []float32
}

var _ Index = (*FlatL2)(nil)

func NewFlatL2(dimension int) (*FlatL2, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	return &FlatL2{dim: dimension}, nil
}

func (f *FlatL2) Dimension() int { return f.dim }

func (f *FlatL2) Len() int { return len(f.data) / f.dim }

func (f *FlatL2) Add(_ context.Context, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search ranks every stored vector; equal distances keep insertion order.
func (f *FlatL2) Search(ctx context.Context, queries [][]float32, k int) ([][]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidConfiguration, k)
	}
	n := f.Len()
	k = min(k, n)
	results := make([][]Neighbor, len(queries))
	for qi, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(q) != f.dim {
			return nil, fmt.Errorf("query %d has dimension %d, index expects %d", qi, len(q), f.dim)
		}
		all := make([]Neighbor, n)
		for i := 0; i < n; i++ {
			all[i] = Neighbor{Position: i, Distance: squaredL2(q, f.data[i*f.dim:(i+1)*f.dim])}
		}
		slices.SortStableFunc(all, func(a, b Neighbor) int {
			switch {
			case a.Distance < b.Distance:
				return -1
			case a.Distance > b.Distance:
				return 1
			}
			return 0
		})
		results[qi] = all[:k]
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type flatFile struct {
	Magic     string    `msgpack:"magic"`
	Version   int       `msgpack:"version"`
	Dimension int       `msgpack:"dimension"`
	Count     int       `msgpack:"count"`
	Data      []float32 `msgpack:"data"`
}

func (f *FlatL2) WriteFile(path string) error {
	data, err := msgpack.Marshal(&flatFile{
		Magic:     flatMagic,
		Version:   flatVersion,
		Dimension: f.dim,
		Count:     f.Len(),
		Data:      f.data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FlatBackend creates FlatL2 indexes.
type FlatBackend struct{}

func (FlatBackend) Name() string { return "flat" }

func (FlatBackend) New(dimension int) (Index, error) {
	return NewFlatL2(dimension)
}

func (FlatBackend) ReadFile(path string, dimension int) (Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file flatFile
	if err := msgpack.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrArtifactCorrupt, path, err)
	}
	switch {
	case file.Magic != flatMagic || file.Version != flatVersion:
		return nil, fmt.Errorf("%w: %s is not a flat index file", models.ErrArtifactCorrupt, path)
	case file.Dimension <= 0 || file.Dimension != dimension:
		return nil, fmt.Errorf("%w: %s has dimension %d, expected %d", models.ErrArtifactCorrupt, path, file.Dimension, dimension)
	case len(file.Data) != file.Count*file.Dimension:
		return nil, fmt.Errorf("%w: %s holds %d values for %d vectors", models.ErrArtifactCorrupt, path, len(file.Data), file.Count)
	}
	return &FlatL2{dim: file.Dimension, data: file.Data}, nil
}
