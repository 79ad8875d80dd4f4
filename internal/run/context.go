package run

import (
	"fmt"
	"strings"

	"github.com/vibecli/vibe/internal/gitx"
)

// defaultReviewPrompt is used when review mode is invoked without a
// custom prompt.
const defaultReviewPrompt = "Review the completed work, list issues, missing tests, and merge readiness."

// currentDirContext is the context for no-worktree runs: the agent
// shares the operator's working directory and is warned about it.
func currentDirContext(dir, branch string) string {
	return fmt.Sprintf("You are working in the current directory at %s on branch '%s'. "+
		"Please be mindful that any changes you make will affect the current working directory.", dir, branch)
}

// worktreeContext is the isolation contract for a single worktree run.
// The discipline is advisory: the agent is instructed, not sandboxed.
func worktreeContext(branch, path string) string {
	return fmt.Sprintf("You are working in a git worktree branch '%s' located at %s. "+
		"IMPORTANT: Do not write/edit/create files in the main repository root (outside this worktree). "+
		"You can write to this worktree directory and to other unrelated paths like ~/configs, "+
		"but avoid modifying the parent repository. You can read files from anywhere for context. "+
		"This ensures your changes are isolated to this feature branch.", branch, path)
}

// duoWorktreeContext extends the isolation contract with the identity
// and branch of the sibling agent, establishing the soft coordination
// contract between the pair.
func duoWorktreeContext(branch, path, otherAgent, otherBranch string, coordinate bool) string {
	base := fmt.Sprintf("You are working in a git worktree branch '%s' located at %s. "+
		"IMPORTANT: Do not write/edit/create files in the main repository root (outside this worktree). ",
		branch, path)
	if coordinate {
		return base + fmt.Sprintf("Another agent (%s) is working on '%s'; coordinate by keeping your changes isolated to this worktree.",
			otherAgent, otherBranch)
	}
	return base + fmt.Sprintf("Another agent (%s) is simultaneously working on '%s'.", otherAgent, otherBranch)
}

// reviewSharedContext describes both halves of a duo pair to a review
// agent and asks for a keep/keep/hybrid recommendation.
func reviewSharedContext(pair gitx.DuoPair, labelA, labelB, originalPrompt, reviewPrompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing existing work for feature base '%s'. ", pair.Base)
	fmt.Fprintf(&b, "The %s worktree is located at %s on branch '%s', and the %s worktree is located at %s on branch '%s'. ",
		labelA, pair.PathA, pair.BranchA, labelB, pair.PathB, pair.BranchB)
	b.WriteString("Inspect the changes, run git commands as needed, and provide clear feedback on quality, correctness, and next steps. ")
	b.WriteString("Compare both branches: identify which implementation is stronger, where one outperforms the other, " +
		"and whether a hybrid (combining specific commits or files) would deliver the best result.")
	if originalPrompt != "" {
		b.WriteString("\n\nOriginal prompt:\n```\n")
		b.WriteString(strings.TrimSpace(originalPrompt))
		b.WriteString("\n```")
	}
	if reviewPrompt != "" {
		b.WriteString("\n\nReview prompt:\n```\n")
		b.WriteString(strings.TrimSpace(reviewPrompt))
		b.WriteString("\n```")
	}
	return b.String()
}

// reviewLeftFocus steers the left reviewer toward reasoning and an
// explicit recommendation.
func reviewLeftFocus(labelA, labelB string) string {
	return fmt.Sprintf(" Focus on high-level reasoning, risks, and recommended follow-ups."+
		" Make an explicit recommendation: choose %s's branch, %s's branch, or a mix, and justify why.",
		labelA, labelB)
}

// reviewRightFocus steers the right reviewer toward concrete diffs.
const reviewRightFocus = " Focus on concrete diffs, reproduction steps, and actionable fixes." +
	" Identify exact commits/files to cherry-pick if a hybrid approach is best, and note any merge hazards."
