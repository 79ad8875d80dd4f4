package selector

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vibecli/vibe/internal/ui"
)

// fallbackModels is offered when `opencode models` cannot be run.
var fallbackModels = []string{
	"anthropic/claude-sonnet-4-20250514",
	"anthropic/claude-opus-4-20250514",
	"openai/gpt-5",
	"openai/o3",
	"google/gemini-2.5-pro",
}

// PickModel lets the operator choose an oc model, most-used first.
// The chosen model's usage count is bumped and persisted.
func PickModel(p ui.Prompter) (string, error) {
	models := availableModels()

	store, path := loadUsage()
	sortByUsage(models, store)

	options := make([]ui.Option, 0, len(models))
	for _, m := range models {
		options = append(options, ui.Option{Label: m})
	}

	model, err := p.Select("Select model", options)
	if err != nil {
		return "", err
	}

	store[model]++
	saveUsage(path, store)
	return model, nil
}

// availableModels asks the opencode binary for its model list and falls
// back to a static set when the binary is missing or misbehaves.
func availableModels() []string {
	out, err := exec.Command("opencode", "models").Output()
	if err != nil {
		return append([]string(nil), fallbackModels...)
	}

	var models []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, "/") {
			continue
		}
		models = append(models, line)
	}
	if len(models) == 0 {
		return append([]string(nil), fallbackModels...)
	}
	return models
}

func usagePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vibe", "models.json"), nil
}

func loadUsage() (map[string]int, string) {
	store := make(map[string]int)
	path, err := usagePath()
	if err != nil {
		return store, ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return store, path
	}
	if err := json.Unmarshal(data, &store); err != nil {
		return make(map[string]int), path
	}
	return store, path
}

// saveUsage is best effort. A read-only config dir should not block a run.
func saveUsage(path string, store map[string]int) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// sortByUsage orders models by descending usage count, then name.
func sortByUsage(models []string, usage map[string]int) {
	sort.SliceStable(models, func(i, j int) bool {
		ui, uj := usage[models[i]], usage[models[j]]
		if ui != uj {
			return ui > uj
		}
		return models[i] < models[j]
	})
}
