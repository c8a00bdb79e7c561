package llmservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"pdf-rag/internal/models"
)

// recordingLLM captures the messages it is sent
type recordingLLM struct {
	messages []llms.MessageContent
	reply    string
	err      error
	block    bool
}

func (r *recordingLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	r.messages = messages
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.reply}}}, nil
}

func (r *recordingLLM) prompt(t *testing.T) string {
	t.Helper()
	require.Len(t, r.messages, 1)
	assert.Equal(t, schema.ChatMessageTypeHuman, r.messages[0].Role)
	require.Len(t, r.messages[0].Parts, 1)
	text, ok := r.messages[0].Parts[0].(llms.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestGenerate_PromptCarriesContextAndQuestion(t *testing.T) {
	llm := &recordingLLM{reply: "Paris."}
	g := NewGenerator(llm)

	answer, err := g.Generate(context.Background(), "What is the capital of France?", []string{"Paris is the capital of France."})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	prompt := llm.prompt(t)
	assert.Contains(t, prompt, "Paris is the capital of France.")
	assert.Contains(t, prompt, "What is the capital of France?")
	assert.Contains(t, prompt, `say "I don't know"`)
	assert.Contains(t, prompt, "Answer ONLY using the context below.")
}

func TestGenerate_ReturnsReplyVerbatim(t *testing.T) {
	reply := "  <think>hmm</think>\nI don't know  \n"
	g := NewGenerator(&recordingLLM{reply: reply})
	answer, err := g.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, reply, answer)
}

func TestBuildPrompt_JoinsAndTruncates(t *testing.T) {
	g := NewGenerator(&recordingLLM{})

	prompt := g.BuildPrompt("q?", []string{"first", "second"})
	assert.Contains(t, prompt, "first\n\nsecond")

	prompt = g.BuildPrompt("q?", []string{strings.Repeat("1", 1000), strings.Repeat("2", 1000)})
	assert.Equal(t, 1000, strings.Count(prompt, "1"))
	assert.Equal(t, 198, strings.Count(prompt, "2"))

	small := NewGenerator(&recordingLLM{}, WithMaxContextChars(5))
	assert.Contains(t, small.BuildPrompt("q?", []string{"héllo wörld"}), "Context:\nhéllo\n")
}

func TestGenerate_BackendError(t *testing.T) {
	g := NewGenerator(&recordingLLM{err: errors.New("connection refused")})
	_, err := g.Generate(context.Background(), "q", []string{"c"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "connection refused")
}

func TestGenerate_NoChoices(t *testing.T) {
	g := NewGenerator(emptyLLM{})
	_, err := g.Generate(context.Background(), "q", []string{"c"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
}

func TestGenerate_Timeout(t *testing.T) {
	g := NewGenerator(&recordingLLM{block: true}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := g.Generate(context.Background(), "q", []string{"c"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "deadline exceeded")
	assert.Less(t, time.Since(start), 5*time.Second)
}

type emptyLLM struct{}

func (emptyLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

type nilChoiceLLM struct{}

func (nilChoiceLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{nil}}, nil
}

func TestGenerate_NilChoice(t *testing.T) {
	g := NewGenerator(nilChoiceLLM{})
	_, err := g.Generate(context.Background(), "q", []string{"c"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
}
