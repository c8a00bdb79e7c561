package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/session"
)

// Asker answers one question about one document.
type Asker interface {
	AnswerQuestion(ctx context.Context, question, docPath string) (string, error)
}

type answerMsg struct {
	question string
	answer   string
	err      error
}

// Model is the Bubble Tea model for a chat session over one PDF.
type Model struct {
	ctx      context.Context
	asker    Asker
	docPath  string
	history  *session.History
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	busy     bool
	pending  string
	status   string
	ready    bool
}

// New creates a chat model. Questions are answered one at a time.
func New(ctx context.Context, asker Asker, docPath string, history *session.History) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the PDF and press Enter (Ctrl+N clears the history)"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		asker:    asker,
		docPath:  docPath,
		history:  history,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(0, 0),
		status:   "PDF loaded. Ask a question.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := answerBoxStyle.GetFrameSize()
		// header, input, status and a spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-fh-6)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlN:
			if m.busy {
				return m, nil
			}
			m.history.Reset()
			m.status = "Started a new session."
			m.viewport.SetContent(m.renderTranscript())
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.pending = q
			m.status = "Thinking..."
			m.input.Reset()
			return m, tea.Batch(m.spinner.Tick, m.askCmd(q))
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			log.Error().Err(msg.err).Str("session", m.history.ID).Msg("Question failed")
			m.status = ErrorMessage(msg.err)
		} else {
			m.history.Append(msg.question, msg.answer)
			m.status = fmt.Sprintf("Answered %d question(s).", m.history.Len())
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.asker.AnswerQuestion(m.ctx, question, m.docPath)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("PDF Chatbot") + " " + mutedStyle.Render(filepath.Base(m.docPath))
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + answerBoxStyle.Render(m.viewport.View()) + "\n" + m.input.View() + "\n" + status
}

// renderTranscript shows the latest answer followed by every turn, newest first
func (m Model) renderTranscript() string {
	latest, ok := m.history.Latest()
	if !ok {
		return mutedStyle.Render("No questions yet.")
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Answer") + "\n")
	b.WriteString(latest.Answer + "\n\n")
	b.WriteString(sectionStyle.Render("Chat History") + "\n")
	for _, turn := range m.history.Reversed() {
		b.WriteString(questionStyle.Render("Q: ") + turn.Question + "\n")
		b.WriteString(questionStyle.Render("A: ") + turn.Answer + "\n")
		b.WriteString(mutedStyle.Render("---") + "\n")
	}
	return b.String()
}

// ErrorMessage turns a failed question into text for the user
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrGenerationUnavailable):
		return "The language model is unavailable: " + err.Error()
	case errors.Is(err, models.ErrEmptyDocument):
		return "The PDF has no extractable text."
	case errors.Is(err, models.ErrArtifactCorrupt):
		return "The saved index is corrupt, rebuild it with `pdfrag index --rebuild`: " + err.Error()
	case errors.Is(err, models.ErrInvalidConfiguration):
		return "Invalid configuration: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
