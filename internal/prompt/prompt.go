package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrAborted is returned when the operator cancels a prompt with ctrl+c or esc.
var ErrAborted = errors.New("aborted by operator")

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	yesStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	noStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Terminal asks the operator questions on a terminal. It serves the progress
// reuse question, lookup escalations and the wallet gate before a run.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

func NewTerminal() *Terminal {
	return &Terminal{in: os.Stdin, out: os.Stderr}
}

func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	m, err := t.run(ctx, newModel(question, false))
	if err != nil {
		return false, err
	}
	return m.answer, nil
}

func (t *Terminal) Escalate(ctx context.Context, what string, attempts int, cause error) (bool, error) {
	question := fmt.Sprintf("Could not find %s after %d attempts (%v). Keep trying?", what, attempts, cause)
	return t.Confirm(ctx, question)
}

// AwaitOperator blocks until the operator presses y, e.g. once the wallet
// extension is unlocked in the controlled browser.
func (t *Terminal) AwaitOperator(ctx context.Context, message string) error {
	_, err := t.run(ctx, newModel(message, true))
	return err
}

func (t *Terminal) run(ctx context.Context, m model) (model, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(t.in), tea.WithOutput(t.out))
	final, err := p.Run()
	if ctx.Err() != nil {
		return m, ctx.Err()
	}
	if err != nil {
		return m, fmt.Errorf("prompt: %w", err)
	}
	fm, ok := final.(model)
	if !ok {
		return m, fmt.Errorf("prompt: unexpected model %T", final)
	}
	if fm.aborted {
		return fm, ErrAborted
	}
	return fm, nil
}

type model struct {
	question string
	// gate prompts only accept a yes answer
	gate     bool
	answered bool
	answer   bool
	aborted  bool
}

func newModel(question string, gate bool) model {
	return model{question: question, gate: gate}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch strings.ToLower(keyMsg.String()) {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "y":
		m.answered = true
		m.answer = true
		return m, tea.Quit
	case "n":
		if m.gate {
			return m, nil
		}
		m.answered = true
		m.answer = false
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.answered {
		answer := noStyle.Render("no")
		if m.answer {
			answer = yesStyle.Render("yes")
		}
		return questionStyle.Render(m.question) + " " + answer + "\n"
	}
	if m.aborted {
		return noStyle.Render("aborted") + "\n"
	}

	hint := "y / n, esc to abort"
	if m.gate {
		hint = "press y to continue, esc to abort"
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		questionStyle.Render(m.question),
		hintStyle.Render(hint),
	)) + "\n"
}
