package gitx

import (
	"fmt"
	"strings"
)

// DuoPair is a pair of worktrees sharing a common base name, one per
// agent. Pairs are derived from the worktree listing on every call;
// nothing about the pairing is persisted.
type DuoPair struct {
	Base    string
	BranchA string
	PathA   string
	BranchB string
	PathB   string
}

// DuoPairs scans all worktrees for branches named {base}-{labelA} and
// {base}-{labelB} and returns the bases for which both halves exist.
func (m *Manager) DuoPairs(labelA, labelB string) (map[string]DuoPair, error) {
	worktrees, err := m.ListWorktrees()
	if err != nil {
		return nil, err
	}

	suffixA := "-" + labelA
	suffixB := "-" + labelB
	mapA := make(map[string]string)
	mapB := make(map[string]string)
	for branch, path := range worktrees {
		switch {
		case strings.HasSuffix(branch, suffixA):
			mapA[strings.TrimSuffix(branch, suffixA)] = path
		case strings.HasSuffix(branch, suffixB):
			mapB[strings.TrimSuffix(branch, suffixB)] = path
		}
	}

	pairs := make(map[string]DuoPair)
	for base, pathA := range mapA {
		pathB, ok := mapB[base]
		if !ok {
			continue
		}
		pairs[base] = DuoPair{
			Base:    base,
			BranchA: fmt.Sprintf("%s-%s", base, labelA),
			PathA:   pathA,
			BranchB: fmt.Sprintf("%s-%s", base, labelB),
			PathB:   pathB,
		}
	}
	return pairs, nil
}
