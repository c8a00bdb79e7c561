package models

// PromptResponse is the result of one answered question
type PromptResponse struct {
	Query   string
	Source  string
	Content string
	Chunks  []ScoredChunk
}

// ScoredChunk is a retrieved chunk with its position in the index and its distance to the query
type ScoredChunk struct {
	Position int
	Distance float32
	Content  string
}
