// Package tui holds the interactive form used by cifail configure.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves the form without saving.
var ErrCancelled = errors.New("configuration cancelled")

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// FormValues are the settings collected by the configure form.
type FormValues struct {
	Token        string
	Org          string
	Pipeline     string
	MainPipeline string
}

const (
	fieldToken = iota
	fieldOrg
	fieldPipeline
	fieldMainPipeline
	buttonSave
	buttonCancel
	focusCount
)

var fieldLabels = [...]string{
	fieldToken:        "Buildkite API token",
	fieldOrg:          "Organization slug",
	fieldPipeline:     "Default pipeline (optional)",
	fieldMainPipeline: "Trigger-only main pipeline (optional)",
}

// ConfigureForm is a bubbletea model collecting FormValues.
type ConfigureForm struct {
	inputs    [buttonSave]textinput.Model
	focusIdx  int
	err       string
	submitted bool
	cancelled bool
	width     int
}

// NewConfigureForm creates a form prefilled with initial.
func NewConfigureForm(initial FormValues) *ConfigureForm {
	f := &ConfigureForm{width: 60}
	values := [buttonSave]string{initial.Token, initial.Org, initial.Pipeline, initial.MainPipeline}
	placeholders := [buttonSave]string{"bkua_...", "my-org", "my-pipeline", "my-org-main"}

	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 200
		in.Width = 50
		in.SetValue(values[i])
		f.inputs[i] = in
	}
	f.inputs[fieldToken].EchoMode = textinput.EchoPassword
	f.inputs[fieldToken].EchoCharacter = '•'
	f.inputs[fieldToken].Focus()
	return f
}

// Init starts the cursor blinking.
func (f *ConfigureForm) Init() tea.Cmd {
	return textinput.Blink
}

func (f *ConfigureForm) setFocus(idx int) {
	if f.focusIdx < buttonSave {
		f.inputs[f.focusIdx].Blur()
	}
	f.focusIdx = (idx + focusCount) % focusCount
	if f.focusIdx < buttonSave {
		f.inputs[f.focusIdx].Focus()
	}
}

// Update handles key and resize messages.
func (f *ConfigureForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.width = msg.Width
		return f, nil
	case tea.KeyMsg:
		return f.handleKey(msg)
	}
	return f, nil
}

func (f *ConfigureForm) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		f.cancelled = true
		return f, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		f.setFocus(f.focusIdx + 1)
		return f, nil
	case tea.KeyShiftTab, tea.KeyUp:
		f.setFocus(f.focusIdx - 1)
		return f, nil
	case tea.KeyEnter:
		switch {
		case f.focusIdx == buttonCancel:
			f.cancelled = true
			return f, tea.Quit
		case f.focusIdx == buttonSave || f.focusIdx == fieldMainPipeline:
			if err := f.validate(); err != nil {
				f.err = err.Error()
				return f, nil
			}
			f.submitted = true
			return f, tea.Quit
		default:
			f.setFocus(f.focusIdx + 1)
			return f, nil
		}
	}

	if f.focusIdx < buttonSave {
		var cmd tea.Cmd
		f.inputs[f.focusIdx], cmd = f.inputs[f.focusIdx].Update(msg)
		f.err = ""
		return f, cmd
	}
	return f, nil
}

func (f *ConfigureForm) validate() error {
	v := f.Values()
	switch {
	case v.Token == "":
		return errors.New("API token is required")
	case v.Org == "":
		return errors.New("organization slug is required")
	case strings.ContainsAny(v.Org, " /"):
		return fmt.Errorf("organization slug %q must not contain spaces or slashes", v.Org)
	}
	return nil
}

// Values returns the trimmed field values.
func (f *ConfigureForm) Values() FormValues {
	return FormValues{
		Token:        strings.TrimSpace(f.inputs[fieldToken].Value()),
		Org:          strings.TrimSpace(f.inputs[fieldOrg].Value()),
		Pipeline:     strings.TrimSpace(f.inputs[fieldPipeline].Value()),
		MainPipeline: strings.TrimSpace(f.inputs[fieldMainPipeline].Value()),
	}
}

// Submitted reports whether the user saved the form.
func (f *ConfigureForm) Submitted() bool {
	return f.submitted
}

// View renders the form.
func (f *ConfigureForm) View() string {
	if f.submitted || f.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Configure cifail"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Create a token at https://buildkite.com/user/api-access-tokens (read_builds, read_build_logs)"))
	b.WriteString("\n\n")

	inputWidth := f.width - 4
	if inputWidth < 20 {
		inputWidth = 20
	}
	for i := range f.inputs {
		label := labelStyle.Render(fieldLabels[i] + ":")
		if i == f.focusIdx {
			label = valueStyle.Render(fieldLabels[i] + ":")
		}
		f.inputs[i].Width = inputWidth
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n\n")
	}

	save, cancel := dimStyle.Render("[Save]"), dimStyle.Render("[Cancel]")
	switch f.focusIdx {
	case buttonSave:
		save = focusedStyle.Render("[Save]")
	case buttonCancel:
		cancel = focusedStyle.Render("[Cancel]")
	}
	b.WriteString(save + "  " + cancel)
	b.WriteString("\n")

	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + f.err))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Tab/Shift+Tab: move  Enter: next/save  Esc: cancel"))
	b.WriteString("\n")
	return b.String()
}

// RunConfigureForm shows the form on in/out and returns the values entered.
// It returns ErrCancelled when the user leaves without saving.
func RunConfigureForm(ctx context.Context, in io.Reader, out io.Writer, initial FormValues) (FormValues, error) {
	form := NewConfigureForm(initial)
	p := tea.NewProgram(form, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return FormValues{}, fmt.Errorf("configure form failed: %w", err)
	}
	f, ok := final.(*ConfigureForm)
	if !ok || !f.Submitted() {
		return FormValues{}, ErrCancelled
	}
	return f.Values(), nil
}
