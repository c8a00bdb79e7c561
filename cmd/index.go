package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pdf-rag/internal/helper"
)

var (
	rebuild bool
	dump    bool
)

var indexCmd = &cobra.Command{
	Use:   "index <pdf>",
	Short: "Build or load the vector index for a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&rebuild, "rebuild", false, "delete the saved index first")
	indexCmd.Flags().BoolVar(&dump, "dump", false, "print index details as JSON")
	rootCmd.AddCommand(indexCmd)
}

type indexInfo struct {
	Key        string `json:"key"`
	Backend    string `json:"backend"`
	IndexPath  string `json:"index_path"`
	ChunksPath string `json:"chunks_path"`
	Chunks     int    `json:"chunks"`
	Dimension  int    `json:"dimension"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	docPath := args[0]
	if err := requireFile(docPath); err != nil {
		return err
	}

	_, store, err := buildApp(cfg)
	if err != nil {
		return err
	}
	if rebuild {
		if err := store.Remove(docPath); err != nil {
			return err
		}
	}
	entry, err := store.BuildOrLoad(cmd.Context(), docPath)
	if err != nil {
		return err
	}

	indexPath, chunksPath := store.Paths(entry.Key)
	if dump {
		helper.PrettyPrint(cmd.OutOrStdout(), indexInfo{
			Key:        entry.Key,
			Backend:    cfg.RAG.IndexBackend,
			IndexPath:  indexPath,
			ChunksPath: chunksPath,
			Chunks:     len(entry.Chunks),
			Dimension:  entry.Index.Dimension(),
		})
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d chunks indexed in %s\n", len(entry.Chunks), indexPath)
	return nil
}
