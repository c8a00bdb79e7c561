package session

import (
	"slices"

	"pdf-rag/internal/helper"
)

// Turn is one answered question
type Turn struct {
	Question string
	Answer   string
}

// History is the append-only transcript of one interactive session. It is not safe for concurrent use.
type History struct {
	ID    string
	turns []Turn
}

func New() (*History, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &History{ID: id}, nil
}

func (h *History) Append(question, answer string) {
	h.turns = append(h.turns, Turn{Question: question, Answer: answer})
}

func (h *History) Len() int { return len(h.turns) }

// Turns returns the transcript oldest first
func (h *History) Turns() []Turn {
	return slices.Clone(h.turns)
}

// Reversed returns the transcript newest first
func (h *History) Reversed() []Turn {
	out := slices.Clone(h.turns)
	slices.Reverse(out)
	return out
}

// Latest returns the most recent turn
func (h *History) Latest() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

func (h *History) Reset() {
	h.turns = nil
}
