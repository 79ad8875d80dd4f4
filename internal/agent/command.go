package agent

import (
	"fmt"
	"os"
	"strings"
)

// Invocation holds the pieces of one agent launch as structured fields
// rather than a pre-concatenated shell string, so each part is quoted
// exactly once when rendered.
type Invocation struct {
	Binary      string
	Flags       string
	MessageFile string
	Model       string
	Subcommand  string
}

// Build composes the context and prompt into a private temp file and
// returns the invocation that reads it. Exactly one file is created per
// call.
func Build(d Descriptor, context, prompt string) (*Invocation, error) {
	message := context
	if prompt != "" {
		message = context + "\n\n" + prompt
	}

	f, err := os.CreateTemp("", "vibe-msg.")
	if err != nil {
		return nil, fmt.Errorf("create message file: %w", err)
	}
	if _, err := f.WriteString(message); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write message file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close message file: %w", err)
	}

	return &Invocation{
		Binary:      Binary(d.Name),
		Flags:       Flags(d.Name),
		MessageFile: f.Name(),
		Model:       d.Model,
		Subcommand:  d.Subcommand,
	}, nil
}

// ShellCommand renders the line injected into the pane:
//
//	<bin> <flags> [--model m] "$(cat <file>)" [subcommand] && rm -f <file>
//
// The message file is deleted by the shell once the agent exits. An
// agent killed before exit leaves the file behind; the agent outlives
// the vibe process, so there is no parent left to own the cleanup.
func (inv *Invocation) ShellCommand() string {
	quoted := shellQuote(inv.MessageFile)

	var b strings.Builder
	b.WriteString(inv.Binary)
	b.WriteString(" ")
	b.WriteString(inv.Flags)
	if inv.Model != "" {
		b.WriteString(" --model ")
		b.WriteString(shellQuote(inv.Model))
	}
	b.WriteString(` "$(cat `)
	b.WriteString(quoted)
	b.WriteString(`)"`)
	if inv.Subcommand != "" {
		b.WriteString(" ")
		b.WriteString(shellQuote(inv.Subcommand))
	}
	b.WriteString(" && rm -f ")
	b.WriteString(quoted)
	return b.String()
}

// shellQuote wraps s in single quotes when it contains anything the
// shell could interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
