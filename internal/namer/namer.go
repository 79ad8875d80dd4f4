// Package namer turns a free-text prompt into a branch-name candidate.
// The orchestrator validates candidates against git's ref-name grammar
// before use; no fallback name is synthesized on failure.
package namer

import (
	"context"
	"strings"
	"unicode"
)

// Namer produces a sanitized lowercase-hyphenated branch-name candidate
// for a prompt.
type Namer interface {
	BranchName(ctx context.Context, prompt string) (string, error)
}

// Sanitize lowercases name and collapses every run of non-alphanumeric
// characters into a single hyphen, trimming hyphens at both ends.
func Sanitize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	lowered = strings.TrimLeft(lowered, "-_ ")

	var b strings.Builder
	previousDash := false
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			previousDash = false
			continue
		}
		if !previousDash {
			b.WriteRune('-')
		}
		previousDash = true
	}
	return strings.Trim(b.String(), "-")
}
