// Package selector drives the interactive choice of run mode, agents
// and, for the oc agent, a model. It only runs when no mode or agent
// flags were given on a terminal.
package selector

import (
	"fmt"

	"github.com/vibecli/vibe/internal/agent"
	"github.com/vibecli/vibe/internal/ui"
)

// Modes offered by the mode picker.
const (
	ModeSingle = "single"
	ModeDuo    = "duo"
	ModeReview = "review"
)

// Selection is the outcome of the interactive flow.
type Selection struct {
	Mode   string
	Agents []agent.Descriptor
}

// KnownAgents returns the agents offered by the pickers.
func KnownAgents() []string {
	return []string{agent.Claude, agent.Codex, agent.Amp, agent.OpenCode}
}

// Run walks the operator through mode and agent selection. Returns
// ui.ErrNoSelection when a picker is dismissed.
func Run(p ui.Prompter) (*Selection, error) {
	mode, err := pickMode(p)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeDuo:
		first, err := pickAgent(p, "Select first agent", "")
		if err != nil {
			return nil, err
		}
		second, err := pickAgent(p, "Select second agent", first.Name)
		if err != nil {
			return nil, err
		}
		return &Selection{Mode: mode, Agents: []agent.Descriptor{first, second}}, nil

	case ModeReview:
		return &Selection{
			Mode:   mode,
			Agents: []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
		}, nil

	default:
		desc, err := pickAgent(p, "Select agent", "")
		if err != nil {
			return nil, err
		}
		return &Selection{Mode: mode, Agents: []agent.Descriptor{desc}}, nil
	}
}

func pickMode(p ui.Prompter) (string, error) {
	return p.Select("Select mode", []ui.Option{
		{Label: ModeSingle, Desc: "Single agent - Work with one AI agent"},
		{Label: ModeDuo, Desc: "Duo mode - Work with two agents in parallel"},
		{Label: ModeReview, Desc: "Review mode - Review existing duo work"},
	})
}

// pickAgent selects one agent, excluding a previous choice, and resolves
// a model for agents that need one.
func pickAgent(p ui.Prompter, title, exclude string) (agent.Descriptor, error) {
	var options []ui.Option
	for _, name := range KnownAgents() {
		if name == exclude {
			continue
		}
		options = append(options, ui.Option{Label: name})
	}
	name, err := p.Select(title, options)
	if err != nil {
		return agent.Descriptor{}, err
	}

	desc := agent.Descriptor{Name: name}
	if name == agent.OpenCode {
		model, err := PickModel(p)
		if err != nil {
			return agent.Descriptor{}, fmt.Errorf("select model: %w", err)
		}
		desc.Model = model
	}
	return desc, nil
}
