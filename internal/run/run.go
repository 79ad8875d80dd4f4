// Package run orchestrates agent launches: it resolves workspaces,
// opens multiplexer windows and panes, and injects each agent's command.
// Once the commands are injected the agents run unsupervised; the
// orchestrator exits without waiting for them.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/vibecli/vibe/internal/agent"
	"github.com/vibecli/vibe/internal/gitx"
	"github.com/vibecli/vibe/internal/namer"
	"github.com/vibecli/vibe/internal/ui"
)

// Mode selects the run workflow.
type Mode int

const (
	// ModeSingle launches one agent in one pane.
	ModeSingle Mode = iota
	// ModeDuo launches two agents on sibling branches in a split window.
	ModeDuo
	// ModeReview re-opens an existing duo pair for comparison.
	ModeReview
)

// ErrOutsideTmux is returned when an agent launch is attempted outside a
// live tmux session.
var ErrOutsideTmux = errors.New("vibe must be run inside an existing tmux session. Please run 'tmux' first")

// injectDelay gives a fresh pane's shell time to come up before keys are
// injected.
const injectDelay = 100 * time.Millisecond

// Request is the resolved input to one run. Immutable once constructed.
type Request struct {
	Mode   Mode
	Prompt string

	// Agents holds one descriptor for single mode and two for duo and
	// review modes.
	Agents []agent.Descriptor

	// BranchName skips the namer and uses an explicit branch (single)
	// or base name (duo).
	BranchName string

	NoWorktree bool
	FromBranch string
	FromMaster bool

	// ReviewBase names the duo pair to review; empty means auto-select.
	ReviewBase string

	// SessionName is the tmux session an empty-prompt invocation opens
	// or joins instead of launching anything.
	SessionName string
}

// Git is the workspace capability the orchestrator consumes.
type Git interface {
	Root() string
	WorktreeBase() string
	ValidateBranchName(name string) error
	CurrentBranch() string
	Allocate(name, sourceRef string) (*gitx.Workspace, error)
	ResolveSourceRef(override, cwd string, fromMaster bool) string
	DuoPairs(labelA, labelB string) (map[string]gitx.DuoPair, error)
	PullLatest() error
}

// Multiplexer is the tmux capability the orchestrator consumes.
type Multiplexer interface {
	EnsureAvailable() error
	InsideSession() bool
	SessionExists(name string) bool
	NewSession(name, dir string, detached bool) error
	SwitchClient(name string) error
	NewWindow(name, dir string) (string, error)
	SplitWindow(windowID, dir string) (string, error)
	CurrentPane(windowID string) (string, error)
	SelectPane(target string) error
	SetPaneTitle(target, title string) error
	SendKeys(target string, keys ...string) error
	SetWindowVar(windowID, name, value string) error
}

// Orchestrator executes run requests against its collaborators.
type Orchestrator struct {
	Git    Git
	Tmux   Multiplexer
	Namer  namer.Namer
	Prompt ui.Prompter
	Out    *ui.Output
}

// Run executes the request. Preconditions are checked before any
// mutation; after that, any git or tmux failure aborts the run with no
// rollback. Half-created workspaces are picked up by the next
// invocation's reuse logic.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	if err := o.Tmux.EnsureAvailable(); err != nil {
		return err
	}
	if !o.Tmux.InsideSession() {
		return ErrOutsideTmux
	}

	// No prompt means the operator just wants a session, whatever mode
	// was asked for. Review is the exception: it falls back to a stock
	// review prompt.
	if req.Prompt == "" && req.Mode != ModeReview {
		return o.IdleAttach(req.SessionName)
	}

	switch req.Mode {
	case ModeDuo:
		return o.runDuo(ctx, req)
	case ModeReview:
		return o.runReview(ctx, req)
	default:
		return o.runSingle(ctx, req)
	}
}

// IdleAttach handles the no-prompt path: ensure the named session exists
// and switch the client to it.
func (o *Orchestrator) IdleAttach(sessionName string) error {
	if err := o.Tmux.EnsureAvailable(); err != nil {
		return err
	}
	if !o.Tmux.SessionExists(sessionName) {
		if err := o.Tmux.NewSession(sessionName, o.workdir(), true); err != nil {
			return err
		}
	}
	return o.Tmux.SwitchClient(sessionName)
}

func (o *Orchestrator) runSingle(ctx context.Context, req Request) error {
	o.pullLatest(req)

	if req.NoWorktree {
		desc := req.Agents[0]
		o.Out.Successf("Running in no-worktree mode (current directory)")
		branch := o.Git.CurrentBranch()
		dir := o.workdir()
		o.runInitScript(dir)

		windowID, err := o.openWindow(branch, dir)
		if err != nil {
			return err
		}
		command, err := o.buildCommand(desc, currentDirContext(dir, branch), req.Prompt)
		if err != nil {
			return err
		}
		if err := o.Tmux.SendKeys(windowID, command, "C-m"); err != nil {
			return err
		}
		o.Out.Successf("✓ Successfully started %s in current directory in window: %s", desc.Name, windowID)
		return nil
	}

	desc := req.Agents[0]
	branch, err := o.branchName(ctx, req)
	if err != nil {
		return err
	}

	sourceRef := o.Git.ResolveSourceRef(req.FromBranch, o.workdir(), req.FromMaster)
	ws, err := o.allocate(branch, sourceRef)
	if err != nil {
		return err
	}

	o.Out.Successf("Working directory: %s", ws.Path)
	o.runInitScript(ws.Path)

	windowID, err := o.openWindow(ws.Branch, ws.Path)
	if err != nil {
		return err
	}
	command, err := o.buildCommand(desc, worktreeContext(ws.Branch, ws.Path), req.Prompt)
	if err != nil {
		return err
	}
	if err := o.Tmux.SendKeys(windowID, command, "C-m"); err != nil {
		return err
	}
	o.Out.Successf("✓ Successfully created worktree and started %s in window: %s", desc.Name, windowID)
	return nil
}

func (o *Orchestrator) runDuo(ctx context.Context, req Request) error {
	o.pullLatest(req)
	first, second := req.Agents[0], req.Agents[1]

	if req.NoWorktree {
		return o.runDuoNoWorktree(req, first, second)
	}

	base, err := o.branchName(ctx, req)
	if err != nil {
		return err
	}
	branchA := fmt.Sprintf("%s-%s", base, first.Name)
	branchB := fmt.Sprintf("%s-%s", base, second.Name)

	// Both branches fork from one resolved ref so the pair shares an
	// ancestor even when started from inside another worktree.
	sourceRef := o.Git.ResolveSourceRef(req.FromBranch, o.workdir(), req.FromMaster)
	wsA, err := o.allocate(branchA, sourceRef)
	if err != nil {
		return err
	}
	wsB, err := o.allocate(branchB, sourceRef)
	if err != nil {
		return err
	}

	if err := o.writeDuoPrompt(base, req.Prompt); err != nil {
		o.Out.Warnf("Warning: could not record duo prompt: %v", err)
	}

	o.runInitScript(wsA.Path)
	if wsB.Path != wsA.Path {
		o.runInitScript(wsB.Path)
	}

	left, right, windowID, err := o.openSplitWindow(base, wsA.Path, wsB.Path)
	if err != nil {
		return err
	}
	if err := o.titlePanes(left, first.Name, right, second.Name); err != nil {
		return err
	}

	ctxA := duoWorktreeContext(branchA, wsA.Path, second.Name, branchB, true)
	ctxB := duoWorktreeContext(branchB, wsB.Path, first.Name, branchA, false)
	if err := o.injectPair(left, first, ctxA, right, second, ctxB, req.Prompt); err != nil {
		return err
	}

	o.Out.Successf("✓ Started %s (left) on %s and %s (right) on %s in window: %s",
		first.Name, branchA, second.Name, branchB, windowID)
	return nil
}

func (o *Orchestrator) runDuoNoWorktree(req Request, first, second agent.Descriptor) error {
	branch := o.Git.CurrentBranch()
	dir := o.workdir()
	o.runInitScript(dir)

	left, right, windowID, err := o.openSplitWindow(branch+"-duo", dir, dir)
	if err != nil {
		return err
	}
	if err := o.titlePanes(left, first.Name, right, second.Name); err != nil {
		return err
	}

	shared := currentDirContext(dir, branch) +
		" A parallel agent is collaborating on the same prompt in another pane."
	ctxA := fmt.Sprintf("%s You are the %s agent.", shared, first.Name)
	ctxB := fmt.Sprintf("%s You are the %s agent.", shared, second.Name)
	if err := o.injectPair(left, first, ctxA, right, second, ctxB, req.Prompt); err != nil {
		return err
	}

	o.Out.Successf("✓ Started %s (left) and %s (right) in window: %s", first.Name, second.Name, windowID)
	return nil
}

func (o *Orchestrator) runReview(ctx context.Context, req Request) error {
	first, second := req.Agents[0], req.Agents[1]

	pair, err := o.resolveReviewTarget(req.ReviewBase, first.Name, second.Name)
	if err != nil {
		return err
	}

	originalPrompt := o.readDuoPrompt(pair.Base)

	o.runInitScript(pair.PathA)
	if pair.PathB != pair.PathA {
		o.runInitScript(pair.PathB)
	}

	left, right, windowID, err := o.openSplitWindow(pair.Base+"-review", pair.PathA, pair.PathB)
	if err != nil {
		return err
	}
	if err := o.titlePanes(left, first.Name, right, second.Name); err != nil {
		return err
	}

	reviewPrompt := req.Prompt
	if reviewPrompt == "" {
		reviewPrompt = defaultReviewPrompt
		if originalPrompt != "" {
			o.Out.Infof("Original duo prompt:\n%s", originalPrompt)
		}
	}

	shared := reviewSharedContext(pair, first.Name, second.Name, originalPrompt, req.Prompt)
	ctxA := shared + reviewLeftFocus(first.Name, second.Name)
	ctxB := shared + reviewRightFocus
	if err := o.injectPair(left, first, ctxA, right, second, ctxB, reviewPrompt); err != nil {
		return err
	}

	o.Out.Successf("✓ Started review for base '%s' (%s left, %s right) in window: %s",
		pair.Base, first.Name, second.Name, windowID)
	return nil
}

// resolveReviewTarget finds the duo pair to review: explicit base, auto
// when exactly one exists, picker on a terminal, fatal otherwise.
func (o *Orchestrator) resolveReviewTarget(baseHint, labelA, labelB string) (gitx.DuoPair, error) {
	pairs, err := o.Git.DuoPairs(labelA, labelB)
	if err != nil {
		return gitx.DuoPair{}, err
	}

	if baseHint != "" {
		pair, ok := pairs[baseHint]
		if !ok {
			return gitx.DuoPair{}, fmt.Errorf("no duo worktree pair found for base '%s'. Pass a different base or run --duo first", baseHint)
		}
		return pair, nil
	}

	if len(pairs) == 0 {
		return gitx.DuoPair{}, errors.New("no existing duo worktrees found. Run vibe --duo first or specify --review-base")
	}

	bases := make([]string, 0, len(pairs))
	for base := range pairs {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	if len(bases) == 1 {
		return pairs[bases[0]], nil
	}

	if o.Prompt.Interactive() {
		options := make([]ui.Option, len(bases))
		for i, base := range bases {
			pair := pairs[base]
			options[i] = ui.Option{Label: base, Desc: fmt.Sprintf("%s / %s", pair.BranchA, pair.BranchB)}
		}
		chosen, err := o.Prompt.Select("Select a duo worktree base to review", options)
		if err != nil {
			return gitx.DuoPair{}, fmt.Errorf("invalid selection for review base: %w", err)
		}
		return pairs[chosen], nil
	}

	return gitx.DuoPair{}, fmt.Errorf("multiple duo worktrees found (%s). Provide --review-base to disambiguate",
		joinBases(bases))
}

// branchName resolves the branch or base name for the run: explicit
// override, else the namer's candidate. Either way the name must pass
// the ref-name grammar before any write happens; an invalid candidate is
// recoverable only by prompting on a terminal.
func (o *Orchestrator) branchName(ctx context.Context, req Request) (string, error) {
	if req.BranchName != "" {
		if err := o.Git.ValidateBranchName(req.BranchName); err != nil {
			return "", err
		}
		return req.BranchName, nil
	}

	candidate, err := o.Namer.BranchName(ctx, req.Prompt)
	if err != nil {
		return "", fmt.Errorf("AI branch name generation failed: %w", err)
	}
	if err := o.Git.ValidateBranchName(candidate); err == nil {
		return candidate, nil
	}
	if !o.Prompt.Interactive() {
		return "", fmt.Errorf("%w: generated name %q is not a valid branch name", gitx.ErrInvalidBranchName, candidate)
	}
	custom, err := o.Prompt.Input("Enter a custom branch name (or press Ctrl+C to cancel)")
	if err != nil || custom == "" {
		return "", errors.New("no branch name provided")
	}
	if err := o.Git.ValidateBranchName(custom); err != nil {
		return "", err
	}
	return custom, nil
}

// allocate wraps Git.Allocate with the interactive conflict fallback: a
// worktree-creation race or name collision prompts for an alternate
// branch only on a terminal; otherwise it is fatal.
func (o *Orchestrator) allocate(branch, sourceRef string) (*gitx.Workspace, error) {
	ws, err := o.Git.Allocate(branch, sourceRef)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, gitx.ErrWorktreeConflict) {
		return nil, err
	}
	if !o.Prompt.Interactive() {
		return nil, fmt.Errorf("%w: cannot prompt for input in non-interactive mode. Try --no-worktree or a simpler prompt", err)
	}
	custom, inputErr := o.Prompt.Input("Enter a custom branch name (or press Ctrl+C to cancel)")
	if inputErr != nil || custom == "" {
		return nil, errors.New("no branch name provided")
	}
	if err := o.Git.ValidateBranchName(custom); err != nil {
		return nil, err
	}
	return o.Git.Allocate(custom, "HEAD")
}

// openWindow creates a window, records its directory, and wakes the
// pane's shell.
func (o *Orchestrator) openWindow(name, dir string) (string, error) {
	windowID, err := o.Tmux.NewWindow(name, dir)
	if err != nil {
		return "", err
	}
	o.Out.Successf("Created tmux window: %s", windowID)
	if err := o.Tmux.SetWindowVar(windowID, "window_dir", dir); err != nil {
		o.Out.Warnf("Warning: could not set window directory variable")
	}
	time.Sleep(injectDelay)
	if err := o.Tmux.SendKeys(windowID, "C-m"); err != nil {
		return "", err
	}
	time.Sleep(injectDelay)
	return windowID, nil
}

// openSplitWindow creates a two-pane window, left at dirA, right at
// dirB, and returns both pane ids.
func (o *Orchestrator) openSplitWindow(name, dirA, dirB string) (left, right, windowID string, err error) {
	windowID, err = o.Tmux.NewWindow(name, dirA)
	if err != nil {
		return "", "", "", err
	}
	o.Out.Successf("Created tmux window: %s", windowID)
	left, err = o.Tmux.CurrentPane(windowID)
	if err != nil {
		return "", "", "", err
	}
	right, err = o.Tmux.SplitWindow(windowID, dirB)
	if err != nil {
		return "", "", "", err
	}
	if err := o.Tmux.SetWindowVar(windowID, "window_dir", dirA); err != nil {
		o.Out.Warnf("Warning: could not set window directory variable")
	}
	if err := o.Tmux.SendKeys(left, "C-m"); err != nil {
		return "", "", "", err
	}
	time.Sleep(injectDelay)
	if err := o.Tmux.SendKeys(right, "C-m"); err != nil {
		return "", "", "", err
	}
	time.Sleep(injectDelay)
	return left, right, windowID, nil
}

func (o *Orchestrator) titlePanes(left, leftTitle, right, rightTitle string) error {
	if err := o.Tmux.SetPaneTitle(left, leftTitle); err != nil {
		return err
	}
	return o.Tmux.SetPaneTitle(right, rightTitle)
}

// injectPair builds and injects both agents' commands, left first.
func (o *Orchestrator) injectPair(left string, a agent.Descriptor, ctxA string, right string, b agent.Descriptor, ctxB, prompt string) error {
	cmdA, err := o.buildCommand(a, ctxA, prompt)
	if err != nil {
		return err
	}
	cmdB, err := o.buildCommand(b, ctxB, prompt)
	if err != nil {
		return err
	}
	if err := o.Tmux.SendKeys(left, cmdA, "C-m"); err != nil {
		return err
	}
	if err := o.Tmux.SendKeys(right, cmdB, "C-m"); err != nil {
		return err
	}
	// Land the operator on the left pane. Cosmetic, so failures pass.
	_ = o.Tmux.SelectPane(left)
	return nil
}

func (o *Orchestrator) buildCommand(desc agent.Descriptor, context, prompt string) (string, error) {
	inv, err := agent.Build(desc, context, prompt)
	if err != nil {
		return "", err
	}
	return inv.ShellCommand(), nil
}

// pullLatest rebases on upstream before a run unless an explicit source
// branch makes that pointless. Failures only warn: uncommitted changes
// or a missing remote should never block a launch.
func (o *Orchestrator) pullLatest(req Request) {
	if req.FromBranch != "" {
		o.Out.Successf("Using --from branch: %s (skipping pull from origin)", req.FromBranch)
		return
	}
	o.Out.Successf("Pulling latest changes from origin...")
	if err := o.Git.PullLatest(); err != nil {
		o.Out.Warnf("Warning: could not pull latest changes (%v). Continuing anyway...", err)
	}
}

// runInitScript runs scripts/init.sh in a workspace when present.
// Failures warn and continue.
func (o *Orchestrator) runInitScript(dir string) {
	script := filepath.Join(dir, "scripts", "init.sh")
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return
	}
	o.Out.Successf("Running worktree initialization script...")
	cmd := exec.Command("bash", script)
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		o.Out.Warnf("Warning: initialization script failed, continuing anyway...")
	}
}

func (o *Orchestrator) workdir() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return o.Git.Root()
}

func joinBases(bases []string) string {
	out := ""
	for i, base := range bases {
		if i > 0 {
			out += ", "
		}
		out += base
	}
	return out
}
