// Package promptio gathers the free-text prompt that drives a run, from
// command-line args, stdin, a file, or an interactively opened editor.
package promptio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Source selects where the prompt text comes from.
type Source int

const (
	// FromArgs joins the remaining command-line arguments.
	FromArgs Source = iota
	// FromStdin reads standard input to EOF.
	FromStdin
	// FromEditor opens $EDITOR on a comment template.
	FromEditor
	// FromFile reads a named file.
	FromFile
)

// DefaultEditor is used when $EDITOR is unset.
const DefaultEditor = "helix"

const editorTemplate = "# Enter your message below. Lines starting with # will be ignored.\n" +
	"# Save and exit when done.\n\n"

// Request describes one prompt-gathering operation.
type Request struct {
	Source   Source
	Args     []string
	FilePath string
	Editor   string
	Stdin    io.Reader
}

// Gather returns the composed prompt with trailing newlines stripped.
func Gather(req Request) (string, error) {
	switch req.Source {
	case FromStdin:
		in := req.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil

	case FromEditor:
		text, err := openEditor(req.Editor)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(text, "\n"), nil

	case FromFile:
		if req.FilePath == "" {
			return "", fmt.Errorf("file %q not found", req.FilePath)
		}
		data, err := os.ReadFile(req.FilePath)
		if err != nil {
			return "", fmt.Errorf("file %q not found", req.FilePath)
		}
		return strings.TrimRight(string(data), "\n"), nil

	default:
		return strings.TrimSpace(strings.Join(req.Args, " ")), nil
	}
}

// EditorFromEnv returns $EDITOR or the default.
func EditorFromEnv() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	return DefaultEditor
}

// openEditor writes the comment template to a temp file, runs the
// editor on it, and returns the non-comment lines.
func openEditor(editor string) (string, error) {
	if editor == "" {
		editor = EditorFromEnv()
	}

	f, err := os.CreateTemp("", "vibe.")
	if err != nil {
		return "", fmt.Errorf("create editor file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(editorTemplate); err != nil {
		f.Close()
		return "", fmt.Errorf("write editor file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close editor file: %w", err)
	}

	cmdline := editorCommand(editor, path)
	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("editor %q exited with error: %w", editor, err)
		}
		return "", fmt.Errorf("editor %q not found", editor)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read editor file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// editorCommand positions the cursor below the template comments for
// editors whose jump syntax we know.
func editorCommand(editor, path string) []string {
	switch editor {
	case "vim", "nvim", "nano", "emacs":
		return []string{editor, path, "+4"}
	case "helix", "hx":
		return []string{editor, fmt.Sprintf("%s:4:1", path)}
	default:
		return []string{editor, path}
	}
}

var subcommandRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SplitSubcommand captures a leading "/word" prompt prefix as a codex
// sub-command token, returning the token and the remaining prompt.
// Prompts without the prefix come back unchanged with an empty token.
func SplitSubcommand(prompt string) (string, string) {
	if !strings.HasPrefix(prompt, "/") {
		return "", prompt
	}
	parts := strings.SplitN(prompt, " ", 2)
	candidate := strings.TrimPrefix(parts[0], "/")
	if candidate == "" || !subcommandRe.MatchString(candidate) {
		return "", prompt
	}
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return candidate, rest
}
