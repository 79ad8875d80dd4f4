package ui

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ErrNoSelection is returned when the operator dismisses a picker or no
// scripted answer remains.
var ErrNoSelection = errors.New("no selection")

// Option is one selectable entry in a picker.
type Option struct {
	Label string
	Desc  string
}

// Prompter is the operator-interaction capability. Core orchestration
// logic calls this interface and never reads standard input directly, so
// automation and tests can substitute scripted answers.
type Prompter interface {
	// Interactive reports whether a human can answer prompts.
	Interactive() bool

	// Input asks for a free-text line.
	Input(label string) (string, error)

	// Confirm asks a yes/no question, defaulting to no.
	Confirm(label string) (bool, error)

	// Select asks the operator to pick one option, returning its label.
	Select(title string, options []Option) (string, error)
}

// TerminalPrompter prompts a human on the controlling terminal.
type TerminalPrompter struct {
	in  *os.File
	out *Output
}

// NewTerminalPrompter returns a prompter reading from stdin.
func NewTerminalPrompter(out *Output) *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: out}
}

// Interactive reports whether stdin is a terminal.
func (p *TerminalPrompter) Interactive() bool {
	return isatty.IsTerminal(p.in.Fd()) || isatty.IsCygwinTerminal(p.in.Fd())
}

// Input reads one line after printing the label.
func (p *TerminalPrompter) Input(label string) (string, error) {
	fmt.Fprintf(p.out.Stdout, "%s: ", label)
	reader := bufio.NewReader(p.in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks label and accepts y/yes as assent.
func (p *TerminalPrompter) Confirm(label string) (bool, error) {
	answer, err := p.Input(label + " (y/N)")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// Select runs a full-screen list picker for the options.
func (p *TerminalPrompter) Select(title string, options []Option) (string, error) {
	return pick(title, options)
}

// ScriptedPrompter answers prompts from pre-seeded values. Used by tests
// and non-interactive automation.
type ScriptedPrompter struct {
	TTY        bool
	Inputs     []string
	Confirms   []bool
	Selections []string

	inputIdx   int
	confirmIdx int
	selectIdx  int
}

// Interactive reports the scripted TTY flag.
func (p *ScriptedPrompter) Interactive() bool { return p.TTY }

// Input returns the next scripted input.
func (p *ScriptedPrompter) Input(label string) (string, error) {
	if p.inputIdx >= len(p.Inputs) {
		return "", ErrNoSelection
	}
	v := p.Inputs[p.inputIdx]
	p.inputIdx++
	return v, nil
}

// Confirm returns the next scripted answer.
func (p *ScriptedPrompter) Confirm(label string) (bool, error) {
	if p.confirmIdx >= len(p.Confirms) {
		return false, ErrNoSelection
	}
	v := p.Confirms[p.confirmIdx]
	p.confirmIdx++
	return v, nil
}

// Select returns the next scripted selection.
func (p *ScriptedPrompter) Select(title string, options []Option) (string, error) {
	if p.selectIdx >= len(p.Selections) {
		return "", ErrNoSelection
	}
	v := p.Selections[p.selectIdx]
	p.selectIdx++
	return v, nil
}
