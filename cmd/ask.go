package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <pdf> <question>",
	Short: "Answer one question about a PDF",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved chunks after the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	docPath, question := args[0], strings.TrimSpace(args[1])
	if question == "" {
		return errors.New("question must not be empty")
	}
	if err := requireFile(docPath); err != nil {
		return err
	}

	app, _, err := buildApp(cfg)
	if err != nil {
		return err
	}
	resp, err := app.Query(cmd.Context(), question, docPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Content)
	if showSources {
		for i, c := range resp.Chunks {
			fmt.Fprintf(out, "\n[%d] chunk %d, distance %.4f\n%s\n", i+1, c.Position, c.Distance, c.Content)
		}
	}
	return nil
}
