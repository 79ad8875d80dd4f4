package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibecli/vibe/internal/agent"
	"github.com/vibecli/vibe/internal/gitx"
	"github.com/vibecli/vibe/internal/ui"
)

// fakeGit records workspace operations without touching a repository.
type fakeGit struct {
	root       string
	branch     string
	pairs      map[string]gitx.DuoPair
	conflictOn string

	allocated []string
	sourceRef string
	pulled    bool
}

func newFakeGit(t *testing.T) *fakeGit {
	t.Helper()
	return &fakeGit{root: t.TempDir(), branch: "master"}
}

func (g *fakeGit) Root() string         { return g.root }
func (g *fakeGit) WorktreeBase() string { return filepath.Join(g.root, "worktrees") }
func (g *fakeGit) CurrentBranch() string {
	return g.branch
}

func (g *fakeGit) ValidateBranchName(name string) error {
	if strings.ContainsAny(name, " ~^:") {
		return fmt.Errorf("%w: %q", gitx.ErrInvalidBranchName, name)
	}
	return nil
}

func (g *fakeGit) Allocate(name, sourceRef string) (*gitx.Workspace, error) {
	if name == g.conflictOn {
		return nil, fmt.Errorf("%w: git worktree add %s", gitx.ErrWorktreeConflict, name)
	}
	g.allocated = append(g.allocated, name)
	g.sourceRef = sourceRef
	path := filepath.Join(g.WorktreeBase(), name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &gitx.Workspace{Branch: name, Path: path}, nil
}

func (g *fakeGit) ResolveSourceRef(override, cwd string, fromMaster bool) string {
	if override != "" {
		return override
	}
	if fromMaster {
		return gitx.TrunkBranch
	}
	return "HEAD"
}

func (g *fakeGit) DuoPairs(labelA, labelB string) (map[string]gitx.DuoPair, error) {
	if g.pairs == nil {
		return map[string]gitx.DuoPair{}, nil
	}
	return g.pairs, nil
}

func (g *fakeGit) PullLatest() error {
	g.pulled = true
	return nil
}

// fakeTmux records multiplexer calls in memory.
type fakeTmux struct {
	available error
	inside    bool
	sessions  map[string]bool

	windows     []string
	splits      []string
	titles      map[string]string
	sent        map[string][]string
	newSessions []string
	switched    []string
}

func newFakeTmux() *fakeTmux {
	return &fakeTmux{
		inside:   true,
		sessions: make(map[string]bool),
		titles:   make(map[string]string),
		sent:     make(map[string][]string),
	}
}

func (f *fakeTmux) EnsureAvailable() error       { return f.available }
func (f *fakeTmux) InsideSession() bool          { return f.inside }
func (f *fakeTmux) SessionExists(n string) bool  { return f.sessions[n] }
func (f *fakeTmux) SwitchClient(n string) error  { f.switched = append(f.switched, n); return nil }
func (f *fakeTmux) SelectPane(target string) error { return nil }

func (f *fakeTmux) NewSession(name, dir string, detached bool) error {
	f.newSessions = append(f.newSessions, name)
	f.sessions[name] = true
	return nil
}

func (f *fakeTmux) NewWindow(name, dir string) (string, error) {
	f.windows = append(f.windows, name)
	return fmt.Sprintf("@%d", len(f.windows)), nil
}

func (f *fakeTmux) SplitWindow(windowID, dir string) (string, error) {
	f.splits = append(f.splits, windowID)
	return fmt.Sprintf("%%%d", len(f.splits)+10), nil
}

func (f *fakeTmux) CurrentPane(windowID string) (string, error) { return "%0", nil }

func (f *fakeTmux) SetPaneTitle(target, title string) error {
	f.titles[target] = title
	return nil
}

func (f *fakeTmux) SendKeys(target string, keys ...string) error {
	f.sent[target] = append(f.sent[target], keys...)
	return nil
}

func (f *fakeTmux) SetWindowVar(windowID, name, value string) error { return nil }

type fakeNamer struct {
	name string
	err  error
}

func (n *fakeNamer) BranchName(ctx context.Context, prompt string) (string, error) {
	return n.name, n.err
}

func newTestOrchestrator(git *fakeGit, tm *fakeTmux, nm *fakeNamer, p ui.Prompter) *Orchestrator {
	if p == nil {
		p = &ui.ScriptedPrompter{}
	}
	return &Orchestrator{
		Git:    git,
		Tmux:   tm,
		Namer:  nm,
		Prompt: p,
		Out:    &ui.Output{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}},
	}
}

// messageFor extracts the message-file path from an injected command and
// returns the file's contents.
func messageFor(t *testing.T, command string) string {
	t.Helper()
	start := strings.Index(command, `"$(cat `)
	if start < 0 {
		t.Fatalf("command %q carries no message substitution", command)
	}
	rest := command[start+len(`"$(cat `):]
	end := strings.Index(rest, `)"`)
	if end < 0 {
		t.Fatalf("command %q carries no message substitution", command)
	}
	path := strings.Trim(rest[:end], "'")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read message file %s: %v", path, err)
	}
	t.Cleanup(func() { os.Remove(path) })
	return string(data)
}

// injectedCommand returns the shell command sent to a pane, skipping the
// bare C-m wake-ups.
func injectedCommand(t *testing.T, tm *fakeTmux, target string) string {
	t.Helper()
	for _, keys := range tm.sent[target] {
		if keys != "C-m" {
			return keys
		}
	}
	t.Fatalf("no command injected into %s (sent: %v)", target, tm.sent)
	return ""
}

func TestRunOutsideTmux(t *testing.T) {
	git := newFakeGit(t)
	tm := newFakeTmux()
	tm.inside = false
	o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, nil)

	err := o.Run(context.Background(), Request{
		Mode:   ModeSingle,
		Prompt: "fix the login bug",
		Agents: []agent.Descriptor{{Name: agent.Claude}},
	})
	if !errors.Is(err, ErrOutsideTmux) {
		t.Fatalf("Run() error = %v, want ErrOutsideTmux", err)
	}

	// The precondition must fail before any workspace mutation.
	if len(git.allocated) != 0 {
		t.Errorf("allocated = %v, want none", git.allocated)
	}
	if git.pulled {
		t.Error("no pull should happen outside tmux")
	}
	if len(tm.windows) != 0 {
		t.Errorf("windows = %v, want none", tm.windows)
	}
}

func TestRunSingle(t *testing.T) {
	t.Run("worktree run allocates, opens a window and injects the prompt", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, nil)

		err := o.Run(context.Background(), Request{
			Mode:   ModeSingle,
			Prompt: "fix the login bug",
			Agents: []agent.Descriptor{{Name: agent.Claude}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if !git.pulled {
			t.Error("expected a pull before the run")
		}
		if len(git.allocated) != 1 || git.allocated[0] != "fix-auth" {
			t.Errorf("allocated = %v, want [fix-auth]", git.allocated)
		}
		if git.sourceRef != "HEAD" {
			t.Errorf("sourceRef = %q, want HEAD", git.sourceRef)
		}
		if len(tm.windows) != 1 || tm.windows[0] != "fix-auth" {
			t.Errorf("windows = %v, want [fix-auth]", tm.windows)
		}

		command := injectedCommand(t, tm, "@1")
		if !strings.HasPrefix(command, "claude --dangerously-skip-permissions") {
			t.Errorf("command = %q, want claude prefix", command)
		}
		if !strings.Contains(command, "&& rm -f") {
			t.Errorf("command = %q, want trailing cleanup", command)
		}
		message := messageFor(t, command)
		if !strings.Contains(message, "fix the login bug") {
			t.Errorf("message %q does not carry the literal prompt", message)
		}
		if !strings.Contains(message, "fix-auth") {
			t.Errorf("message %q does not name the branch", message)
		}
	})

	t.Run("no-worktree run uses the current directory", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:       ModeSingle,
			Prompt:     "quick change",
			Agents:     []agent.Descriptor{{Name: agent.Codex}},
			NoWorktree: true,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if len(git.allocated) != 0 {
			t.Errorf("allocated = %v, want none in no-worktree mode", git.allocated)
		}
		if len(tm.windows) != 1 || tm.windows[0] != "master" {
			t.Errorf("windows = %v, want [master]", tm.windows)
		}
		command := injectedCommand(t, tm, "@1")
		if !strings.HasPrefix(command, "codex --dangerously-bypass-approvals-and-sandbox") {
			t.Errorf("command = %q, want codex prefix", command)
		}
		message := messageFor(t, command)
		if !strings.Contains(message, "current directory") {
			t.Errorf("message %q should warn about the shared directory", message)
		}
	})

	t.Run("explicit branch skips the namer", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{err: errors.New("should not be called")}, nil)

		err := o.Run(context.Background(), Request{
			Mode:       ModeSingle,
			Prompt:     "some work",
			Agents:     []agent.Descriptor{{Name: agent.Claude}},
			BranchName: "my-branch",
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(git.allocated) != 1 || git.allocated[0] != "my-branch" {
			t.Errorf("allocated = %v, want [my-branch]", git.allocated)
		}
	})

	t.Run("invalid explicit branch fails before any mutation", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:       ModeSingle,
			Prompt:     "some work",
			Agents:     []agent.Descriptor{{Name: agent.Claude}},
			BranchName: "bad name",
		})
		if !errors.Is(err, gitx.ErrInvalidBranchName) {
			t.Fatalf("Run() error = %v, want ErrInvalidBranchName", err)
		}
		if len(git.allocated) != 0 || len(tm.windows) != 0 {
			t.Error("nothing should be created for an invalid branch name")
		}
	})

	t.Run("invalid generated name is fatal when non-interactive", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "bad name"}, &ui.ScriptedPrompter{TTY: false})

		err := o.Run(context.Background(), Request{
			Mode:   ModeSingle,
			Prompt: "some work",
			Agents: []agent.Descriptor{{Name: agent.Claude}},
		})
		if !errors.Is(err, gitx.ErrInvalidBranchName) {
			t.Fatalf("Run() error = %v, want ErrInvalidBranchName", err)
		}
	})

	t.Run("invalid generated name falls back to operator input", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		prompter := &ui.ScriptedPrompter{TTY: true, Inputs: []string{"typed-branch"}}
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "bad name"}, prompter)

		err := o.Run(context.Background(), Request{
			Mode:   ModeSingle,
			Prompt: "some work",
			Agents: []agent.Descriptor{{Name: agent.Claude}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(git.allocated) != 1 || git.allocated[0] != "typed-branch" {
			t.Errorf("allocated = %v, want [typed-branch]", git.allocated)
		}
	})

	t.Run("worktree conflict is fatal when non-interactive", func(t *testing.T) {
		git := newFakeGit(t)
		git.conflictOn = "fix-auth"
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, &ui.ScriptedPrompter{TTY: false})

		err := o.Run(context.Background(), Request{
			Mode:   ModeSingle,
			Prompt: "fix the login bug",
			Agents: []agent.Descriptor{{Name: agent.Claude}},
		})
		if !errors.Is(err, gitx.ErrWorktreeConflict) {
			t.Fatalf("Run() error = %v, want ErrWorktreeConflict", err)
		}
		if !strings.Contains(err.Error(), "--no-worktree") {
			t.Errorf("error %q should suggest --no-worktree", err)
		}
	})

	t.Run("worktree conflict retries with an operator-provided name", func(t *testing.T) {
		git := newFakeGit(t)
		git.conflictOn = "fix-auth"
		tm := newFakeTmux()
		prompter := &ui.ScriptedPrompter{TTY: true, Inputs: []string{"fix-auth-2"}}
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, prompter)

		err := o.Run(context.Background(), Request{
			Mode:   ModeSingle,
			Prompt: "fix the login bug",
			Agents: []agent.Descriptor{{Name: agent.Claude}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(git.allocated) != 1 || git.allocated[0] != "fix-auth-2" {
			t.Errorf("allocated = %v, want [fix-auth-2]", git.allocated)
		}
		// The retry branches from HEAD rather than the original source.
		if git.sourceRef != "HEAD" {
			t.Errorf("retry sourceRef = %q, want HEAD", git.sourceRef)
		}
	})
}

func TestRunDuo(t *testing.T) {
	t.Run("creates sibling branches from one source ref", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, nil)

		err := o.Run(context.Background(), Request{
			Mode:   ModeDuo,
			Prompt: "fix the login bug",
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		want := []string{"fix-auth-claude", "fix-auth-codex"}
		if len(git.allocated) != 2 || git.allocated[0] != want[0] || git.allocated[1] != want[1] {
			t.Errorf("allocated = %v, want %v", git.allocated, want)
		}

		if len(tm.windows) != 1 || tm.windows[0] != "fix-auth" {
			t.Errorf("windows = %v, want [fix-auth]", tm.windows)
		}
		if len(tm.splits) != 1 {
			t.Errorf("splits = %v, want one split", tm.splits)
		}
		if tm.titles["%0"] != "claude" || tm.titles["%11"] != "codex" {
			t.Errorf("pane titles = %v, want claude left, codex right", tm.titles)
		}

		left := injectedCommand(t, tm, "%0")
		right := injectedCommand(t, tm, "%11")
		if !strings.HasPrefix(left, "claude ") {
			t.Errorf("left command = %q, want claude", left)
		}
		if !strings.HasPrefix(right, "codex ") {
			t.Errorf("right command = %q, want codex", right)
		}

		// Each agent's context names the sibling and its branch.
		leftMsg := messageFor(t, left)
		if !strings.Contains(leftMsg, "codex") || !strings.Contains(leftMsg, "fix-auth-codex") {
			t.Errorf("left message %q should reference the sibling agent", leftMsg)
		}
		rightMsg := messageFor(t, right)
		if !strings.Contains(rightMsg, "claude") || !strings.Contains(rightMsg, "fix-auth-claude") {
			t.Errorf("right message %q should reference the sibling agent", rightMsg)
		}
		if !strings.Contains(leftMsg, "fix the login bug") || !strings.Contains(rightMsg, "fix the login bug") {
			t.Error("both messages should carry the literal prompt")
		}
	})

	t.Run("records the duo prompt for later review", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{name: "fix-auth"}, nil)

		err := o.Run(context.Background(), Request{
			Mode:   ModeDuo,
			Prompt: "fix the login bug",
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		recorded, err := os.ReadFile(filepath.Join(git.WorktreeBase(), ".vibe", "fix-auth.prompt"))
		if err != nil {
			t.Fatalf("duo prompt not recorded: %v", err)
		}
		if string(recorded) != "fix the login bug" {
			t.Errorf("recorded prompt = %q", recorded)
		}
	})
}

func TestRunReview(t *testing.T) {
	duoPair := func(git *fakeGit, base string) gitx.DuoPair {
		return gitx.DuoPair{
			Base:    base,
			BranchA: base + "-claude",
			PathA:   filepath.Join(git.WorktreeBase(), base+"-claude"),
			BranchB: base + "-codex",
			PathB:   filepath.Join(git.WorktreeBase(), base+"-codex"),
		}
	}

	t.Run("auto-selects the only pair", func(t *testing.T) {
		git := newFakeGit(t)
		git.pairs = map[string]gitx.DuoPair{"fix-auth": duoPair(git, "fix-auth")}
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:   ModeReview,
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(tm.windows) != 1 || tm.windows[0] != "fix-auth-review" {
			t.Errorf("windows = %v, want [fix-auth-review]", tm.windows)
		}

		left := injectedCommand(t, tm, "%0")
		msg := messageFor(t, left)
		if !strings.Contains(msg, "fix-auth-claude") || !strings.Contains(msg, "fix-auth-codex") {
			t.Errorf("review message %q should carry both branches", msg)
		}
		if !strings.Contains(msg, defaultReviewPrompt) {
			t.Errorf("review message %q should carry the default review prompt", msg)
		}
	})

	t.Run("explicit base must exist", func(t *testing.T) {
		git := newFakeGit(t)
		git.pairs = map[string]gitx.DuoPair{"fix-auth": duoPair(git, "fix-auth")}
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:       ModeReview,
			Agents:     []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
			ReviewBase: "missing",
		})
		if err == nil || !strings.Contains(err.Error(), "missing") {
			t.Fatalf("Run() error = %v, want missing-base error", err)
		}
	})

	t.Run("multiple pairs are fatal without a terminal", func(t *testing.T) {
		git := newFakeGit(t)
		git.pairs = map[string]gitx.DuoPair{
			"fix-auth":  duoPair(git, "fix-auth"),
			"dark-mode": duoPair(git, "dark-mode"),
		}
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, &ui.ScriptedPrompter{TTY: false})

		err := o.Run(context.Background(), Request{
			Mode:   ModeReview,
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err == nil {
			t.Fatal("Run() error = nil, want fatal on ambiguous pairs")
		}
		for _, base := range []string{"dark-mode", "fix-auth"} {
			if !strings.Contains(err.Error(), base) {
				t.Errorf("error %q should list candidate %q", err, base)
			}
		}
	})

	t.Run("multiple pairs use the picker on a terminal", func(t *testing.T) {
		git := newFakeGit(t)
		git.pairs = map[string]gitx.DuoPair{
			"fix-auth":  duoPair(git, "fix-auth"),
			"dark-mode": duoPair(git, "dark-mode"),
		}
		tm := newFakeTmux()
		prompter := &ui.ScriptedPrompter{TTY: true, Selections: []string{"dark-mode"}}
		o := newTestOrchestrator(git, tm, nil, prompter)

		err := o.Run(context.Background(), Request{
			Mode:   ModeReview,
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(tm.windows) != 1 || tm.windows[0] != "dark-mode-review" {
			t.Errorf("windows = %v, want [dark-mode-review]", tm.windows)
		}
	})

	t.Run("no pairs is an error", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:   ModeReview,
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		})
		if err == nil || !strings.Contains(err.Error(), "--duo") {
			t.Fatalf("Run() error = %v, want hint to run --duo first", err)
		}
	})
}

func TestRunEmptyPrompt(t *testing.T) {
	t.Run("single mode creates the session and switches to it", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:        ModeSingle,
			Agents:      []agent.Descriptor{{Name: agent.Claude}},
			SessionName: "vibe-proj",
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(tm.newSessions) != 1 || tm.newSessions[0] != "vibe-proj" {
			t.Errorf("newSessions = %v, want [vibe-proj]", tm.newSessions)
		}
		if len(tm.switched) != 1 || tm.switched[0] != "vibe-proj" {
			t.Errorf("switched = %v, want [vibe-proj]", tm.switched)
		}
	})

	t.Run("reuses an existing session", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		tm.sessions["vibe-proj"] = true
		o := newTestOrchestrator(git, tm, nil, nil)

		err := o.Run(context.Background(), Request{
			Mode:        ModeSingle,
			Agents:      []agent.Descriptor{{Name: agent.Claude}},
			SessionName: "vibe-proj",
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(tm.newSessions) != 0 {
			t.Errorf("newSessions = %v, want none", tm.newSessions)
		}
	})

	t.Run("duo mode idles instead of creating worktrees", func(t *testing.T) {
		git := newFakeGit(t)
		tm := newFakeTmux()
		o := newTestOrchestrator(git, tm, &fakeNamer{err: errors.New("should not be called")}, nil)

		err := o.Run(context.Background(), Request{
			Mode:        ModeDuo,
			Agents:      []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
			SessionName: "vibe-proj",
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(git.allocated) != 0 {
			t.Errorf("allocated = %v, want none without a prompt", git.allocated)
		}
		if git.pulled {
			t.Error("no pull should happen without a prompt")
		}
		if len(tm.windows) != 0 {
			t.Errorf("windows = %v, want none without a prompt", tm.windows)
		}
		if len(tm.switched) != 1 || tm.switched[0] != "vibe-proj" {
			t.Errorf("switched = %v, want [vibe-proj]", tm.switched)
		}
	})
}
