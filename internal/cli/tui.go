package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stackpm/pkg/registry"
)

// Prompt styles
var (
	promptQuestionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	promptHintStyle     = lipgloss.NewStyle().Foreground(colorDim)
	promptYesStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	promptNoStyle       = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// ConfirmModel - Interactive yes/no prompt
// =============================================================================

// ConfirmModel is the bubbletea model for a yes/no question.
type ConfirmModel struct {
	Question   string
	DefaultYes bool

	Answered bool
	Yes      bool
	Aborted  bool
}

// NewConfirmModel creates a confirm model.
func NewConfirmModel(question string, defaultYes bool) ConfirmModel {
	return ConfirmModel{Question: question, DefaultYes: defaultYes}
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.Answered, m.Yes = true, true
		return m, tea.Quit
	case "n":
		m.Answered, m.Yes = true, false
		return m, tea.Quit
	case "enter":
		m.Answered, m.Yes = true, m.DefaultYes
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		m.Aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	var b strings.Builder
	b.WriteString(StyleHighlight.Render("?") + " " + promptQuestionStyle.Render(m.Question) + " ")
	if m.Answered {
		if m.Yes {
			b.WriteString(promptYesStyle.Render("yes"))
		} else {
			b.WriteString(promptNoStyle.Render("no"))
		}
		b.WriteString("\n")
		return b.String()
	}
	hint := "[y/N]"
	if m.DefaultYes {
		hint = "[Y/n]"
	}
	b.WriteString(promptHintStyle.Render(hint))
	return b.String()
}

// =============================================================================
// terminalPrompter - install.Prompter on the terminal
// =============================================================================

// terminalPrompter asks questions with ConfirmModel. With yes set, or when
// stdin is not a terminal, it answers without asking: yes in the first
// case, the question's default in the second.
type terminalPrompter struct {
	yes         bool
	interactive bool
	in          io.Reader
	out         io.Writer

	mu sync.Mutex

	// beforePrompt runs once before the first question is shown.
	beforePrompt func()
}

func newTerminalPrompter(yes bool) *terminalPrompter {
	return &terminalPrompter{
		yes:         yes,
		interactive: isTerminal(os.Stdin),
		in:          os.Stdin,
		out:         os.Stderr,
	}
}

// Confirm implements install.Prompter.
func (p *terminalPrompter) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	if p.yes {
		return true, nil
	}
	if !p.interactive {
		return defaultYes, nil
	}

	// Installs run concurrently; questions are asked one at a time.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beforePrompt != nil {
		p.beforePrompt()
		p.beforePrompt = nil
	}

	prog := tea.NewProgram(NewConfirmModel(question, defaultYes),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := prog.Run()
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	m := final.(ConfirmModel)
	if m.Aborted {
		return false, context.Canceled
	}
	return m.Yes, nil
}

// Verification implements install.Prompter. Keeping the edited directory
// is the default; declining restores the store copy.
func (p *terminalPrompter) Verification(ctx context.Context, f registry.VerificationFailure) (registry.Decision, error) {
	keep, err := p.Confirm(ctx, fmt.Sprintf("%s cannot be verified (%s). Keep it as a checkout?", f.Dir, f.Reason), true)
	if err != nil {
		return registry.DecisionRevert, err
	}
	if keep {
		return registry.DecisionCheckout, nil
	}
	return registry.DecisionRevert, nil
}

// onPrompt registers fn to run before the first question, e.g. to stop a
// spinner drawing on the same terminal.
func (p *terminalPrompter) onPrompt(fn func()) {
	p.mu.Lock()
	p.beforePrompt = fn
	p.mu.Unlock()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
