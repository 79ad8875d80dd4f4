// Package gitx manages git worktrees and branches for vibe workspaces.
//
// Every operation shells out to the git CLI; vibe never links a git
// library. All managed worktrees live under a single "worktrees"
// directory beside the repository root, and branch names double as
// worktree directory names.
package gitx

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WorktreeDirName is the directory beside the repository root that holds
// all vibe-managed worktrees.
const WorktreeDirName = "worktrees"

// TrunkBranch is the ref returned by ResolveSourceRef when branching
// from the trunk is requested from inside a worktree.
const TrunkBranch = "master"

// ErrNotGitRepo is returned when the directory is not inside a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrInvalidBranchName is returned when a name fails git's ref-name grammar.
var ErrInvalidBranchName = errors.New("invalid branch name")

// ErrWorktreeConflict is returned when git refuses to create a worktree,
// typically because a sibling path or branch is already taken.
var ErrWorktreeConflict = errors.New("worktree conflict")

// Workspace maps a branch to the worktree directory checked out at it.
type Workspace struct {
	Branch string
	Path   string
}

// Reporter receives progress notices from workspace operations. The
// manager never writes to the terminal directly.
type Reporter interface {
	Successf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Manager handles worktree and branch lifecycle for one repository.
type Manager struct {
	repoRoot string

	// Reporter, if set, receives allocation notices ("reusing",
	// "pruning", ...). Nil means silent.
	Reporter Reporter
}

// NewManager creates a manager rooted at the repository containing dir.
// Returns ErrNotGitRepo if dir is not inside a git repository.
func NewManager(dir string) (*Manager, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, ErrNotGitRepo
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return nil, ErrNotGitRepo
	}
	return &Manager{repoRoot: root}, nil
}

// Root returns the repository root the manager operates against.
func (m *Manager) Root() string {
	return m.repoRoot
}

// WorktreeBase returns the directory that holds all managed worktrees.
func (m *Manager) WorktreeBase() string {
	return filepath.Join(m.repoRoot, WorktreeDirName)
}

// ValidateBranchName checks name against git's own ref-name grammar.
// Must be called before any write operation that takes a branch name.
func (m *Manager) ValidateBranchName(name string) error {
	cmd := exec.Command("git", "check-ref-format", "--branch", name)
	cmd.Dir = m.repoRoot
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	}
	return nil
}

// BranchExists reports whether a local branch with the given name exists.
func (m *Manager) BranchExists(name string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = m.repoRoot
	return cmd.Run() == nil
}

// CurrentBranch returns the branch checked out in the manager's root,
// or "detached" when HEAD does not point at a branch.
func (m *Manager) CurrentBranch() string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = m.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "detached"
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" || branch == "HEAD" {
		return "detached"
	}
	return branch
}

// FindByBranch returns the workspace whose worktree is checked out at
// the given branch, or nil if no worktree tracks it.
func (m *Manager) FindByBranch(name string) (*Workspace, error) {
	worktrees, err := m.ListWorktrees()
	if err != nil {
		return nil, err
	}
	if path, ok := worktrees[name]; ok {
		return &Workspace{Branch: name, Path: path}, nil
	}
	return nil, nil
}

// ListWorktrees returns a branch -> path mapping for every checked-out
// worktree of the repository, parsed from the porcelain listing.
func (m *Manager) ListWorktrees() (map[string]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	worktrees := make(map[string]string)
	var currentPath string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "worktree "):
			currentPath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch ") && currentPath != "":
			branch := strings.TrimPrefix(line, "branch ")
			branch = strings.TrimPrefix(branch, "refs/heads/")
			worktrees[branch] = currentPath
		case line == "":
			currentPath = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}
	return worktrees, nil
}

// Allocate maps a branch name to a workspace, creating it if absent,
// reusing it if present, and repairing it if git metadata and the
// filesystem have diverged. The precedence is deliberate: a stale
// mapping must be repaired against the existing branch, never re-derived
// from sourceRef, or prior work on that branch would be discarded.
//
// A worktree-creation conflict surfaces as ErrWorktreeConflict; callers
// decide whether to prompt for an alternate name.
func (m *Manager) Allocate(name, sourceRef string) (*Workspace, error) {
	if err := m.ValidateBranchName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.WorktreeBase(), 0755); err != nil {
		return nil, fmt.Errorf("create worktree base: %w", err)
	}
	wtPath := filepath.Join(m.WorktreeBase(), name)

	existing, err := m.FindByBranch(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.warnf("Branch '%s' already has a worktree at: %s", name, existing.Path)
		if info, statErr := os.Stat(existing.Path); statErr == nil && info.IsDir() {
			m.successf("Using existing worktree at: %s", existing.Path)
			return existing, nil
		}
		// Mapping survived but the directory is gone. Prune the stale
		// metadata and re-attach the existing branch at the usual path.
		m.warnf("Worktree directory doesn't exist. Pruning and recreating...")
		if err := m.Prune(); err != nil {
			return nil, err
		}
		if err := m.worktreeAdd(wtPath, name, ""); err != nil {
			return nil, err
		}
		return &Workspace{Branch: name, Path: wtPath}, nil
	}

	if m.BranchExists(name) {
		m.successf("Adding worktree for existing branch: %s", name)
		if err := m.worktreeAdd(wtPath, name, ""); err != nil {
			return nil, err
		}
		return &Workspace{Branch: name, Path: wtPath}, nil
	}

	m.successf("Creating new branch and worktree: %s from %s", name, sourceRef)
	if err := m.worktreeAdd(wtPath, name, sourceRef); err != nil {
		return nil, err
	}
	return &Workspace{Branch: name, Path: wtPath}, nil
}

// worktreeAdd attaches a worktree at path. With sourceRef empty the
// branch must already exist; otherwise a new branch is created from it.
func (m *Manager) worktreeAdd(path, branch, sourceRef string) error {
	var cmd *exec.Cmd
	if sourceRef == "" {
		cmd = exec.Command("git", "worktree", "add", path, branch)
	} else {
		cmd = exec.Command("git", "worktree", "add", "-b", branch, path, sourceRef)
	}
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: git worktree add %s: %s", ErrWorktreeConflict, branch, strings.TrimSpace(string(out)))
	}
	return nil
}

// ResolveSourceRef decides which ref a new branch should be created
// from. An explicit override always wins. From inside a worktree tree,
// fromMaster selects the trunk; otherwise the worktree's own branch is
// used so nested runs fork from the right ancestor. Everywhere else the
// current HEAD is used.
func (m *Manager) ResolveSourceRef(override, cwd string, fromMaster bool) string {
	if override != "" {
		return override
	}
	if insideWorktreeTree(cwd) {
		if fromMaster {
			return TrunkBranch
		}
		cmd := exec.Command("git", "branch", "--show-current")
		cmd.Dir = cwd
		if out, err := cmd.Output(); err == nil {
			if branch := strings.TrimSpace(string(out)); branch != "" {
				m.successf("In worktree on '%s' - branching from current branch", branch)
				return branch
			}
		}
	}
	return "HEAD"
}

// insideWorktreeTree reports whether path has a managed-worktree
// directory as one of its elements.
func insideWorktreeTree(path string) bool {
	for _, el := range strings.Split(filepath.ToSlash(path), "/") {
		if el == WorktreeDirName {
			return true
		}
	}
	return false
}

// Dirty reports whether the worktree at path has uncommitted changes.
func (m *Manager) Dirty(path string) (bool, error) {
	cmd := exec.Command("git", "-C", path, "status", "--short")
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// RemoveWorktree force-removes the worktree at path.
func (m *Manager) RemoveWorktree(path string) error {
	cmd := exec.Command("git", "worktree", "remove", path, "--force")
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("remove worktree %s: %s", path, strings.TrimSpace(string(out)))
	}
	return nil
}

// DeleteBranch force-deletes a local branch.
func (m *Manager) DeleteBranch(name string) error {
	cmd := exec.Command("git", "branch", "-D", name)
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("delete branch %s: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}

// Prune removes stale worktree metadata.
func (m *Manager) Prune() error {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = m.repoRoot
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("worktree prune: %w", err)
	}
	return nil
}

// PullLatest rebases the current branch on its upstream. Callers treat a
// failure as a warning: uncommitted changes or a missing remote should
// never block a run.
func (m *Manager) PullLatest() error {
	cmd := exec.Command("git", "pull", "--rebase")
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git pull --rebase: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Fetch updates remote refs. Best-effort, like PullLatest.
func (m *Manager) Fetch() error {
	cmd := exec.Command("git", "fetch")
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git fetch: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Checkout switches the repository root to the given branch.
func (m *Manager) Checkout(branch string) error {
	cmd := exec.Command("git", "checkout", branch)
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("checkout %s: %s", branch, strings.TrimSpace(string(out)))
	}
	return nil
}

// MergeBranch merges branch into the currently checked-out branch.
// Fast-forward only unless mergeCommit is set. A conflict surfaces as an
// error carrying git's output; nothing is auto-resolved.
func (m *Manager) MergeBranch(branch string, mergeCommit bool) error {
	args := []string{"merge", "--ff-only", branch}
	if mergeCommit {
		args = []string{"merge", "--no-ff", branch}
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("merge %s: %s", branch, strings.TrimSpace(string(out)))
	}
	return nil
}

func (m *Manager) successf(format string, args ...any) {
	if m.Reporter != nil {
		m.Reporter.Successf(format, args...)
	}
}

func (m *Manager) warnf(format string, args ...any) {
	if m.Reporter != nil {
		m.Reporter.Warnf(format, args...)
	}
}
