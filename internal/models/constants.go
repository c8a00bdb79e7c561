package models

const (
	ContextSeparator = "\n\n"
	IDontKnow        = "I don't know"
	MaxContextChars  = 1200
)

var (
	// AnswerPromptTemplate takes the retrieved context and the question, in that order.
	AnswerPromptTemplate = `
You are a helpful AI assistant.
Answer ONLY using the context below.
If the answer is not in the context, say "` + IDontKnow + `".

Context:
%s

Question:
%s

Answer:
`
)
