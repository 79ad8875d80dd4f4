// Package merge reconciles a duo run after the fact: one agent's branch
// is kept (optionally merged into a target branch) and the other's
// worktree, branch and tmux windows are cleaned up.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vibecli/vibe/internal/gitx"
	"github.com/vibecli/vibe/internal/tmux"
	"github.com/vibecli/vibe/internal/ui"
)

// ErrDirtyWorktree is returned when the branch to be discarded still has
// uncommitted changes and no force flag was given.
var ErrDirtyWorktree = errors.New("unstaged changes detected")

// Git is the repository capability the reconciler consumes.
type Git interface {
	Root() string
	CurrentBranch() string
	DuoPairs(labelA, labelB string) (map[string]gitx.DuoPair, error)
	Dirty(path string) (bool, error)
	RemoveWorktree(path string) error
	DeleteBranch(name string) error
	Fetch() error
	Checkout(branch string) error
	MergeBranch(branch string, mergeCommit bool) error
}

// Multiplexer is the window-teardown capability the reconciler consumes.
type Multiplexer interface {
	ListWindows() []tmux.Window
	KillWindow(id string, delayed bool)
}

// Options configures one reconciliation.
type Options struct {
	// Base names the duo pair; empty selects interactively.
	Base string

	// Keep is the agent label whose branch survives; empty asks.
	Keep string

	// Merge enables merging the kept branch into a target branch
	// before cleanup.
	Merge bool

	// Into is the merge target; empty means the repository's currently
	// checked-out branch.
	Into string

	// MergeCommit allows a merge commit instead of fast-forward only.
	MergeCommit bool

	// Force proceeds even when the losing worktree has uncommitted
	// changes.
	Force bool

	// NoTmux skips killing related tmux windows.
	NoTmux bool

	// DryRun prints the plan without executing it.
	DryRun bool

	// LabelA and LabelB are the duo agent labels the pair was created
	// with.
	LabelA string
	LabelB string
}

// Reconciler finalizes duo runs.
type Reconciler struct {
	Git    Git
	Tmux   Multiplexer
	Prompt ui.Prompter
	Out    *ui.Output
}

// Run executes the reconciliation. A merge conflict in the target is
// reported and stops everything before any cleanup; the losing branch is
// only ever removed after the keeper is safe.
func (r *Reconciler) Run(opts Options) error {
	pairs, err := r.Git.DuoPairs(opts.LabelA, opts.LabelB)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return errors.New("no duo worktrees found. Run `vibe --duo` before merging")
	}

	pair, err := r.chooseTarget(pairs, opts.Base)
	if err != nil {
		return err
	}

	keep, err := r.keepChoice(opts, pair)
	if err != nil {
		return err
	}

	keepingBranch, keepingPath, losingBranch, losingPath := split(pair, keep, opts.LabelA)

	keepingDirty := r.dirty(keepingPath)
	losingDirty := r.dirty(losingPath)
	if losingDirty && !opts.Force {
		return fmt.Errorf("%w in branch %s. Commit or stash before running `vibe merge`, or re-run with --force",
			ErrDirtyWorktree, losingBranch)
	}

	var windowsToKill []tmux.Window
	if !opts.NoTmux {
		windowsToKill = r.relatedWindows(pair.Base, []string{pair.BranchA, pair.BranchB})
	}

	r.printSummary(pair, keep, keepingBranch, keepingPath, losingBranch, losingPath,
		keepingDirty, losingDirty, windowsToKill, opts)

	if opts.DryRun {
		return nil
	}

	ok, err := r.Prompt.Confirm("Proceed with cleanup?")
	if err != nil {
		return err
	}
	if !ok {
		r.Out.Infof("Merge cancelled")
		return nil
	}

	if opts.Merge {
		if err := r.mergeKeeper(keepingBranch, opts); err != nil {
			return err
		}
	}

	for _, w := range windowsToKill {
		r.Tmux.KillWindow(w.ID, true)
	}

	r.cleanupBranch(losingBranch, losingPath)

	if opts.Merge {
		r.Out.Successf("Kept %s (%s) and merged it into the target branch. Delete %s's leftovers manually if anything remains.",
			keep, keepingBranch, keep)
		return nil
	}
	r.Out.Successf("Kept %s (%s). Next steps: checkout this branch, merge into your target branch, then delete it when finished.",
		keep, keepingBranch)
	return nil
}

// chooseTarget picks a pair: explicit base (fatal when absent), sole
// pair automatically, otherwise a picker on a terminal.
func (r *Reconciler) chooseTarget(pairs map[string]gitx.DuoPair, baseHint string) (gitx.DuoPair, error) {
	if baseHint != "" {
		pair, ok := pairs[baseHint]
		if !ok {
			return gitx.DuoPair{}, fmt.Errorf("no duo worktree pair found for base '%s'", baseHint)
		}
		return pair, nil
	}

	bases := make([]string, 0, len(pairs))
	for base := range pairs {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	if len(bases) == 1 {
		return pairs[bases[0]], nil
	}

	if !r.Prompt.Interactive() {
		return gitx.DuoPair{}, fmt.Errorf("multiple duo worktrees found (%s). Provide --base to disambiguate",
			strings.Join(bases, ", "))
	}
	options := make([]ui.Option, len(bases))
	for i, base := range bases {
		pair := pairs[base]
		options[i] = ui.Option{Label: base, Desc: fmt.Sprintf("%s / %s", pair.BranchA, pair.BranchB)}
	}
	chosen, err := r.Prompt.Select("Select a duo worktree pair", options)
	if err != nil {
		return gitx.DuoPair{}, fmt.Errorf("invalid selection for merge target: %w", err)
	}
	return pairs[chosen], nil
}

// keepChoice resolves which agent's branch survives.
func (r *Reconciler) keepChoice(opts Options, pair gitx.DuoPair) (string, error) {
	if opts.Keep != "" {
		if opts.Keep != opts.LabelA && opts.Keep != opts.LabelB {
			return "", fmt.Errorf("--keep must be %q or %q", opts.LabelA, opts.LabelB)
		}
		return opts.Keep, nil
	}
	choice, err := r.Prompt.Select("Which branch would you like to keep?", []ui.Option{
		{Label: opts.LabelA, Desc: pair.BranchA},
		{Label: opts.LabelB, Desc: pair.BranchB},
	})
	if err != nil {
		return "", fmt.Errorf("invalid selection for branch to keep: %w", err)
	}
	return choice, nil
}

// mergeKeeper merges the keeper into the target branch. Fetch failures
// only warn; a dirty target or a merge conflict is fatal and leaves all
// cleanup undone.
func (r *Reconciler) mergeKeeper(keepingBranch string, opts Options) error {
	if err := r.Git.Fetch(); err != nil {
		r.Out.Warnf("Warning: %v. Continuing with local refs...", err)
	}

	dirty, err := r.Git.Dirty(r.Git.Root())
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w in the target repository. Commit or stash before merging", ErrDirtyWorktree)
	}

	target := opts.Into
	if target == "" {
		target = r.Git.CurrentBranch()
	} else if target != r.Git.CurrentBranch() {
		if err := r.Git.Checkout(target); err != nil {
			return err
		}
	}

	if err := r.Git.MergeBranch(keepingBranch, opts.MergeCommit); err != nil {
		return fmt.Errorf("merge into %s failed, resolve manually (no cleanup performed): %w", target, err)
	}
	r.Out.Successf("Merged %s into %s", keepingBranch, target)
	return nil
}

// cleanupBranch removes the losing worktree and branch. Each step is
// best-effort; a failure warns and the rest proceeds.
func (r *Reconciler) cleanupBranch(branch, path string) {
	if err := r.Git.RemoveWorktree(path); err != nil {
		r.Out.Warnf("Failed to remove worktree %s: %v", path, err)
	} else {
		r.Out.Successf("Removed worktree %s", path)
	}
	if err := r.Git.DeleteBranch(branch); err != nil {
		r.Out.Warnf("Failed to delete branch %s: %v", branch, err)
	} else {
		r.Out.Successf("Deleted branch %s", branch)
	}
}

// relatedWindows finds windows whose name references the base or either
// branch, case-insensitively.
func (r *Reconciler) relatedWindows(base string, branches []string) []tmux.Window {
	var matches []tmux.Window
	for _, w := range r.Tmux.ListWindows() {
		haystack := strings.ToLower(w.Name)
		if strings.Contains(haystack, strings.ToLower(base)) {
			matches = append(matches, w)
			continue
		}
		for _, branch := range branches {
			if strings.Contains(haystack, strings.ToLower(branch)) {
				matches = append(matches, w)
				break
			}
		}
	}
	return matches
}

func (r *Reconciler) dirty(path string) bool {
	dirty, err := r.Git.Dirty(path)
	if err != nil {
		r.Out.Warnf("Failed to inspect %s: %v", path, err)
		return false
	}
	return dirty
}

func (r *Reconciler) printSummary(pair gitx.DuoPair, keep, keepingBranch, keepingPath, losingBranch, losingPath string,
	keepingDirty, losingDirty bool, windows []tmux.Window, opts Options) {
	r.Out.Infof("\n========================================")
	r.Out.Infof("Base: %s", pair.Base)
	r.Out.Infof("Keep branch: %s (%s)", keep, keepingBranch)
	r.Out.Infof("Lose branch: %s", losingBranch)
	r.Out.Infof("Keep path:  %s", keepingPath)
	r.Out.Infof("Lose path:  %s", losingPath)
	if opts.Merge {
		target := opts.Into
		if target == "" {
			target = r.Git.CurrentBranch()
		}
		r.Out.Infof("Merge %s into: %s", keepingBranch, target)
	}
	if keepingDirty {
		r.Out.Infof("\nNote: keeping branch %s has unstaged changes (will remain intact).", keepingBranch)
	}
	if losingDirty {
		r.Out.Infof("\nWarning: losing branch %s has unstaged changes (will be discarded).", losingBranch)
	}
	if len(windows) > 0 {
		r.Out.Infof("\nTmux windows to close:")
		for _, w := range windows {
			r.Out.Infof("  - %s (%s)", w.ID, w.Name)
		}
	}
	r.Out.Infof("========================================\n")
}

// split returns keeper branch/path and loser branch/path for the chosen
// label.
func split(pair gitx.DuoPair, keep, labelA string) (keepingBranch, keepingPath, losingBranch, losingPath string) {
	if keep == labelA {
		return pair.BranchA, pair.PathA, pair.BranchB, pair.PathB
	}
	return pair.BranchB, pair.PathB, pair.BranchA, pair.PathA
}
