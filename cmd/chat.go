package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdf-rag/internal/session"
	"pdf-rag/internal/tui"
)

var printTranscript bool

var chatCmd = &cobra.Command{
	Use:   "chat <pdf>",
	Short: "Chat with a PDF in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&printTranscript, "transcript", false, "print the session transcript, oldest first, on exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	docPath := args[0]
	if err := requireFile(docPath); err != nil {
		return err
	}

	app, store, err := buildApp(cfg)
	if err != nil {
		return err
	}

	// index before the TUI starts so a bad PDF fails here and not on the first question
	fmt.Fprintln(cmd.ErrOrStderr(), "Processing PDF...")
	if _, err := store.BuildOrLoad(cmd.Context(), docPath); err != nil {
		return err
	}

	history, err := session.New()
	if err != nil {
		return err
	}
	p := tea.NewProgram(tui.New(cmd.Context(), app, docPath, history), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	if printTranscript {
		writeTranscript(cmd.OutOrStdout(), history)
	}
	return nil
}

func writeTranscript(w io.Writer, history *session.History) {
	for i, turn := range history.Turns() {
		fmt.Fprintf(w, "Q%d: %s\nA%d: %s\n\n", i+1, turn.Question, i+1, turn.Answer)
	}
}
