// Package tmux drives the terminal multiplexer's session, window and
// pane lifecycle. Every operation is a blocking invocation of the tmux
// binary; injected agent processes run on without supervision once
// SendKeys has delivered their command line.
package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNotInstalled is returned when the tmux binary cannot be found.
var ErrNotInstalled = errors.New("tmux not found")

// killDelaySeconds is how long the server waits on a deferred
// KillWindow so final pane output can flush before the pane disappears.
const killDelaySeconds = "0.5"

// Window identifies a tmux window across sessions.
type Window struct {
	ID      string
	Session string
	Name    string
}

// SessionInfo describes a live session for listings.
type SessionInfo struct {
	Name    string
	Windows int
}

// Controller issues tmux commands against one server socket. The socket
// is fixed at construction and threaded through every call, so test runs
// on a private socket never collide with a user's live session.
type Controller struct {
	bin    string
	socket string
}

// NewController creates a controller for the given socket name. An empty
// socket uses the default tmux server.
func NewController(socket string) *Controller {
	return &Controller{bin: "tmux", socket: socket}
}

// SetBinary overrides the tmux binary path. Used by tests to point at a
// stub executable.
func (c *Controller) SetBinary(path string) {
	c.bin = path
}

// EnsureAvailable fails when the tmux binary is not installed.
func (c *Controller) EnsureAvailable() error {
	if _, err := exec.LookPath(c.bin); err != nil {
		return fmt.Errorf("%w: please install tmux to use vibe", ErrNotInstalled)
	}
	return nil
}

// InsideSession reports whether the current process runs inside a live
// tmux session.
func (c *Controller) InsideSession() bool {
	return os.Getenv("TMUX") != ""
}

func (c *Controller) args(cmdArgs ...string) []string {
	if c.socket == "" {
		return cmdArgs
	}
	return append([]string{"-L", c.socket}, cmdArgs...)
}

func (c *Controller) run(cmdArgs ...string) error {
	cmd := exec.Command(c.bin, c.args(cmdArgs...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux %s: %s", cmdArgs[0], strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Controller) capture(cmdArgs ...string) (string, error) {
	cmd := exec.Command(c.bin, c.args(cmdArgs...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w", cmdArgs[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// SessionExists reports whether a session with the given name exists.
func (c *Controller) SessionExists(name string) bool {
	cmd := exec.Command(c.bin, c.args("has-session", "-t", name)...)
	return cmd.Run() == nil
}

// NewSession creates a session rooted at dir.
func (c *Controller) NewSession(name, dir string, detached bool) error {
	cmdArgs := []string{"new-session"}
	if detached {
		cmdArgs = append(cmdArgs, "-d")
	}
	cmdArgs = append(cmdArgs, "-s", name, "-c", dir)
	return c.run(cmdArgs...)
}

// SwitchClient switches the attached client to another session.
func (c *Controller) SwitchClient(name string) error {
	return c.run("switch-client", "-t", name)
}

// NewWindow creates a window named name rooted at dir and returns its
// window id.
func (c *Controller) NewWindow(name, dir string) (string, error) {
	id, err := c.capture("new-window", "-n", name, "-c", dir, "-P", "-F", "#{window_id}")
	if err != nil {
		return "", fmt.Errorf("could not create tmux window: %w", err)
	}
	return id, nil
}

// SplitWindow splits the window horizontally with a new pane rooted at
// dir and returns the new pane id.
func (c *Controller) SplitWindow(windowID, dir string) (string, error) {
	id, err := c.capture("split-window", "-h", "-t", windowID, "-c", dir, "-P", "-F", "#{pane_id}")
	if err != nil {
		return "", fmt.Errorf("could not split tmux window: %w", err)
	}
	return id, nil
}

// CurrentPane returns the id of the window's active pane.
func (c *Controller) CurrentPane(windowID string) (string, error) {
	return c.capture("display-message", "-p", "-t", windowID, "#{pane_id}")
}

// SelectPane focuses the given pane.
func (c *Controller) SelectPane(target string) error {
	return c.run("select-pane", "-t", target)
}

// SetPaneTitle sets the visible title of a pane.
func (c *Controller) SetPaneTitle(target, title string) error {
	return c.run("select-pane", "-T", title, "-t", target)
}

// SetWindowVar sets a user option on a window. Cosmetic; failures are
// returned but callers usually only warn.
func (c *Controller) SetWindowVar(windowID, name, value string) error {
	return c.run("set-window-option", "-t", windowID, "@"+name, value)
}

// SendKeys injects key strokes into a pane. Appending "C-m" is how a
// constructed shell command is actually executed inside the pane; the
// launched process is not supervised afterwards.
func (c *Controller) SendKeys(target string, keys ...string) error {
	cmdArgs := append([]string{"send-keys", "-t", target}, keys...)
	return c.run(cmdArgs...)
}

// ListWindows returns every window across all sessions. Best-effort: a
// missing binary or tmux error yields an empty list.
func (c *Controller) ListWindows() []Window {
	if _, err := exec.LookPath(c.bin); err != nil {
		return nil
	}
	out, err := c.capture("list-windows", "-a", "-F", "#{window_id} #{session_name} #{window_name}")
	if err != nil || out == "" {
		return nil
	}
	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) == 3 {
			windows = append(windows, Window{ID: parts[0], Session: parts[1], Name: parts[2]})
		}
	}
	return windows
}

// KillWindow tears a window down. With delayed set the grace period is
// scheduled on the tmux server via run-shell, so the kill still fires
// after this process exits. Best-effort: a missing binary or an
// already-closed window is not an error.
func (c *Controller) KillWindow(id string, delayed bool) {
	if _, err := exec.LookPath(c.bin); err != nil {
		return
	}
	if delayed {
		inner := strings.Join(append([]string{c.bin}, c.args("kill-window", "-t", id)...), " ")
		_ = c.run("run-shell", "-b", "-d", killDelaySeconds, inner)
		return
	}
	_ = c.run("kill-window", "-t", id)
}

// ListSessions returns sessions whose name carries the given prefix,
// each with its window count.
func (c *Controller) ListSessions(prefix string) ([]SessionInfo, error) {
	out, err := c.capture("list-sessions", "-F", "#{session_name}")
	if err != nil {
		return nil, err
	}
	var sessions []SessionInfo
	for _, name := range strings.Split(out, "\n") {
		if name == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		count := 0
		if windows, err := c.capture("list-windows", "-t", name, "-F", "#{window_id}"); err == nil && windows != "" {
			count = len(strings.Split(windows, "\n"))
		}
		sessions = append(sessions, SessionInfo{Name: name, Windows: count})
	}
	return sessions, nil
}
