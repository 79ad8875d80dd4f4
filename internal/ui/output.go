// Package ui handles operator-facing terminal I/O: styled status lines
// and the prompt capability used by the orchestrator and reconciler.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

// Output writes status lines for the operator. Successes and plain info
// go to stdout; warnings and errors go to stderr.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an Output bound to the process streams.
func New() *Output {
	return &Output{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Successf prints a green status line.
func (o *Output) Successf(format string, args ...any) {
	fmt.Fprintln(o.Stdout, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a yellow warning line to stderr.
func (o *Output) Warnf(format string, args ...any) {
	fmt.Fprintln(o.Stderr, warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints a red error line to stderr.
func (o *Output) Errorf(format string, args ...any) {
	fmt.Fprintln(o.Stderr, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Infof prints an unstyled line.
func (o *Output) Infof(format string, args ...any) {
	fmt.Fprintf(o.Stdout, format+"\n", args...)
}

// Accent renders s in the listing highlight style.
func (o *Output) Accent(s string) string {
	return accentStyle.Render(s)
}
