package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/indexstore"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/retriever"
	"pdf-rag/internal/vectorindex"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgFile string
	verbose bool
	logFile string

	cfg     *config.Config
	logSink *os.File
)

var rootCmd = &cobra.Command{
	Use:   "pdfrag",
	Short: "Ask questions about a PDF using a local Ollama model",
	Long: `pdfrag extracts the text of a PDF, splits it into overlapping chunks,
embeds them into a vector index kept on disk, and answers questions
using only the most relevant chunks as context.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logSink != nil {
			_ = logSink.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", configFilePath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads the config and points the global logger at stderr, the log file,
// or nowhere when the TUI owns the terminal.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level %q: %w", cfg.Log.Level, err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	switch {
	case logFile != "":
		logSink, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = zerolog.ConsoleWriter{Out: logSink, TimeFormat: time.RFC3339, NoColor: true}
	case cmd == chatCmd:
		out = io.Discard
	}
	log.Logger = log.Output(out).With().Caller().Logger()

	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")
	return nil
}

func redacted(c *config.Config) config.Config {
	cp := *c
	if cp.RAG.EncryptionKey != "" {
		cp.RAG.EncryptionKey = "***"
	}
	return cp
}

// buildApp wires the pipeline from cfg. Nothing talks to Ollama until the first question.
func buildApp(cfg *config.Config) (*rag.RAG, *indexstore.Store, error) {
	embedder := embedding.NewLazy(func() (embeddings.Embedder, error) {
		e, err := embedding.NewOllamaEmbedder(&cfg.EmbedLLM)
		if err != nil {
			return nil, err
		}
		return e, nil
	})

	var backend vectorindex.Backend = vectorindex.FlatBackend{}
	if cfg.RAG.IndexBackend == config.BackendChromem {
		backend = chromemdb.Backend{Compress: cfg.RAG.Compress, EncryptionKey: cfg.RAG.EncryptionKey}
	}

	store, err := indexstore.NewStore(indexstore.Options{
		Dir:          cfg.RAG.ArtifactDir,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		FixedKey:     cfg.RAG.ArtifactKey == config.ArtifactKeyFixed,
	}, embedder, backend, parser.NewPDFExtractor())
	if err != nil {
		return nil, nil, err
	}

	llm, err := llmservice.NewOllamaLLM(&cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	generator := llmservice.NewGenerator(llm,
		llmservice.WithTimeout(cfg.LLM.Timeout()),
		llmservice.WithMaxContextChars(cfg.RAG.MaxContextChars),
		llmservice.WithTemperature(cfg.LLM.Temperature),
	)

	app, err := rag.NewRAG(store, retriever.NewRetriever(embedder), generator, cfg.RAG.TopK)
	if err != nil {
		return nil, nil, err
	}
	return app, store, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
