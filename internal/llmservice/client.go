package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// ContentGenerator is the part of llms.Model the generator needs
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewOllamaLLM creates the chat model used to answer questions
func NewOllamaLLM(llmConfig *config.LLMConfig) (*ollama.LLM, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"inference_model": llmConfig.Model,
	}).Msg("Creating language model client")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize language model: %w", err)
	}
	return llm, nil
}

type Generator struct {
	llm             ContentGenerator
	timeout         time.Duration
	maxContextChars int
	temperature     float64
}

type Option func(*Generator)

// WithTimeout bounds each generation call; zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

func WithMaxContextChars(n int) Option {
	return func(g *Generator) { g.maxContextChars = n }
}

func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

func NewGenerator(llm ContentGenerator, opts ...Option) *Generator {
	g := &Generator{llm: llm, maxContextChars: models.MaxContextChars}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildPrompt joins the chunks, truncates the context to the character budget and fills the template.
func (g *Generator) BuildPrompt(question string, contextChunks []string) string {
	joined := []rune(strings.Join(contextChunks, models.ContextSeparator))
	if len(joined) > g.maxContextChars {
		joined = joined[:g.maxContextChars]
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, string(joined), question)
}

// Generate sends the prompt as one user message and returns the model's reply verbatim.
// Any backend failure, including the timeout, is reported as models.ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, question string, contextChunks []string) (string, error) {
	prompt := g.BuildPrompt(question, contextChunks)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	msgContent := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	start := time.Now()
	res, err := g.llm.GenerateContent(ctx, msgContent, llms.WithTemperature(g.temperature))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, ctxErr)
		}
		return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, err)
	}
	if res == nil || len(res.Choices) == 0 || res.Choices[0] == nil {
		return "", fmt.Errorf("%w: model returned no choices", models.ErrGenerationUnavailable)
	}

	log.Debug().Dur("elapsed", time.Since(start)).Int("prompt_chars", len(prompt)).Msg("Generated answer")
	return res.Choices[0].Content, nil
}
