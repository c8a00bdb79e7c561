package models

import "errors"

var (
	// ErrInvalidConfiguration is returned for bad chunker, retriever or config parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmptyDocument is returned when a document has no extractable text.
	ErrEmptyDocument = errors.New("document has no extractable text")
	// ErrArtifactCorrupt is returned when a persisted index pair exists but cannot be decoded.
	ErrArtifactCorrupt = errors.New("persisted index artifact is corrupt")
	// ErrGenerationUnavailable is returned when the language model fails, errors or times out.
	ErrGenerationUnavailable = errors.New("answer generation unavailable")
)
