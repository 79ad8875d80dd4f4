package run

import (
	"os"
	"path/filepath"
	"strings"
)

// duoPromptDir is the directory under the worktree base where the
// original prompt of each duo run is recorded for later review.
const duoPromptDir = ".vibe"

func (o *Orchestrator) duoPromptPath(base string) string {
	return filepath.Join(o.Git.WorktreeBase(), duoPromptDir, base+".prompt")
}

// writeDuoPrompt records the prompt a duo run was started with so review
// mode can replay it.
func (o *Orchestrator) writeDuoPrompt(base, prompt string) error {
	path := o.duoPromptPath(base)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(prompt), 0644)
}

// readDuoPrompt returns the recorded duo prompt, or empty when none was
// recorded.
func (o *Orchestrator) readDuoPrompt(base string) string {
	data, err := os.ReadFile(o.duoPromptPath(base))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\n")
}
