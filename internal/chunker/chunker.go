package chunker

import (
	"fmt"
	"strings"

	"pdf-rag/internal/models"
)

const (
	DefaultSize    = 500 // runes
	DefaultOverlap = 150 // runes
)

// Validate checks that size and overlap describe a window that advances.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", models.ErrInvalidConfiguration, overlap, size)
	}
	return nil
}

// Chunk splits text into windows of size runes, each starting size-overlap runes after the previous one.
// It stops at the first window that reaches the end of the text, so the last window may be shorter
// than size but is never wholly contained in its predecessor.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []string
	for start := 0; ; start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Reconstruct reverses Chunk: every chunk but the last contributes its first size-overlap runes.
func Reconstruct(chunks []string, size, overlap int) string {
	step := size - overlap
	var b strings.Builder
	for i, c := range chunks {
		runes := []rune(c)
		if i < len(chunks)-1 && len(runes) > step {
			runes = runes[:step]
		}
		b.WriteString(string(runes))
	}
	return b.String()
}
