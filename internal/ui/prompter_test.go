package ui

import (
	"bytes"
	"errors"
	"testing"
)

func TestScriptedPrompter(t *testing.T) {
	t.Run("answers in order", func(t *testing.T) {
		p := &ScriptedPrompter{
			TTY:        true,
			Inputs:     []string{"alt-branch", "second"},
			Confirms:   []bool{true, false},
			Selections: []string{"claude"},
		}

		if !p.Interactive() {
			t.Error("Interactive() = false, want true")
		}

		got, err := p.Input("branch")
		if err != nil || got != "alt-branch" {
			t.Errorf("Input() = (%q, %v), want alt-branch", got, err)
		}
		got, err = p.Input("branch")
		if err != nil || got != "second" {
			t.Errorf("Input() = (%q, %v), want second", got, err)
		}

		ok, err := p.Confirm("proceed")
		if err != nil || !ok {
			t.Errorf("Confirm() = (%v, %v), want true", ok, err)
		}
		ok, err = p.Confirm("proceed")
		if err != nil || ok {
			t.Errorf("Confirm() = (%v, %v), want false", ok, err)
		}

		sel, err := p.Select("agent", []Option{{Label: "claude"}, {Label: "codex"}})
		if err != nil || sel != "claude" {
			t.Errorf("Select() = (%q, %v), want claude", sel, err)
		}
	})

	t.Run("exhausted answers return ErrNoSelection", func(t *testing.T) {
		p := &ScriptedPrompter{}

		if _, err := p.Input("x"); !errors.Is(err, ErrNoSelection) {
			t.Errorf("Input() error = %v, want ErrNoSelection", err)
		}
		if _, err := p.Confirm("x"); !errors.Is(err, ErrNoSelection) {
			t.Errorf("Confirm() error = %v, want ErrNoSelection", err)
		}
		if _, err := p.Select("x", nil); !errors.Is(err, ErrNoSelection) {
			t.Errorf("Select() error = %v, want ErrNoSelection", err)
		}
	})
}

func TestOutputChannels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := New()
	out.Stdout = &stdout
	out.Stderr = &stderr

	out.Successf("created worktree")
	out.Infof("note")
	out.Warnf("Warning: slow")
	out.Errorf("Error: broken")

	if stdout.Len() == 0 {
		t.Error("success and info output should go to stdout")
	}
	if !bytes.Contains(stderr.Bytes(), []byte("slow")) {
		t.Error("warnings should go to stderr")
	}
	if !bytes.Contains(stderr.Bytes(), []byte("broken")) {
		t.Error("errors should go to stderr")
	}
	if bytes.Contains(stdout.Bytes(), []byte("slow")) || bytes.Contains(stdout.Bytes(), []byte("broken")) {
		t.Error("warnings and errors must not appear on stdout")
	}
}
