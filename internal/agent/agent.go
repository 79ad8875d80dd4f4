// Package agent renders the shell command that launches an AI coding
// agent inside a tmux pane. vibe never supervises the agent process; it
// only constructs the invocation and hands it to the multiplexer.
package agent

import (
	"fmt"
	"os"
	"strings"
)

// Known agent names. Any other name is accepted and launched with the
// generic auto-approve flag.
const (
	Claude   = "claude"
	Codex    = "codex"
	Amp      = "amp"
	OpenCode = "oc"
)

// Descriptor identifies one agent for a run.
type Descriptor struct {
	// Name is the agent identity ("claude", "codex", ...). It doubles
	// as the binary name unless overridden via VIBE_<NAME>_BIN.
	Name string

	// Model is an optional model argument, used by the oc agent.
	Model string

	// Subcommand is an optional trailing command token, used by codex.
	Subcommand string
}

// Flags returns the agent's non-interactive auto-approve flag string.
func Flags(name string) string {
	if name == Codex {
		return "--dangerously-bypass-approvals-and-sandbox"
	}
	return "--dangerously-skip-permissions"
}

// Binary resolves the executable for an agent. The environment variable
// VIBE_<NAME>_BIN takes precedence over the agent name itself.
func Binary(name string) string {
	envVar := fmt.Sprintf("VIBE_%s_BIN", strings.ToUpper(name))
	if bin := os.Getenv(envVar); bin != "" {
		return bin
	}
	return name
}
