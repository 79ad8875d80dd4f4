package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibecli/vibe/internal/agent"
	"github.com/vibecli/vibe/internal/gitx"
	"github.com/vibecli/vibe/internal/merge"
	"github.com/vibecli/vibe/internal/namer"
	"github.com/vibecli/vibe/internal/promptio"
	"github.com/vibecli/vibe/internal/run"
	"github.com/vibecli/vibe/internal/selector"
	"github.com/vibecli/vibe/internal/tmux"
	"github.com/vibecli/vibe/internal/ui"
	"github.com/vibecli/vibe/internal/update"
)

var version = "0.1.0"

var rootFlags struct {
	session    string
	project    string
	stdin      bool
	editorMode bool
	inputFile  string
	noWorktree bool
	branch     string
	fromBranch string
	fromMaster bool
	list       bool
	codex      bool
	amp        bool
	oc         bool
	duo        bool
	duoReview  bool
	command    string
	tmuxSocket string
}

var rootCmd = &cobra.Command{
	Use:   "vibe [flags] [prompt...]",
	Short: "Launch AI coding agents in tmux windows backed by git worktrees",
	Long: `Vibe starts coding agents (claude, codex, amp, oc) in their own tmux
windows, each working on an isolated git worktree whose branch name is
synthesized from your prompt. Duo mode runs two agents in parallel on
sibling branches; review mode re-opens an existing pair for comparison.`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLauncher,
}

func runLauncher(cmd *cobra.Command, args []string) error {
	out := ui.New()

	if rootFlags.project != "" {
		if info, err := os.Stat(rootFlags.project); err != nil || !info.IsDir() {
			return fmt.Errorf("project path is not a directory: %s", rootFlags.project)
		}
		if err := os.Chdir(rootFlags.project); err != nil {
			return err
		}
	}

	tm := newMultiplexer()
	if err := tm.EnsureAvailable(); err != nil {
		return err
	}

	if rootFlags.list {
		return printSessions(tm, out)
	}

	if !tm.InsideSession() {
		return run.ErrOutsideTmux
	}

	prompter := ui.NewTerminalPrompter(out)

	mode, agents, err := resolveAgents(prompter)
	if err != nil {
		if errors.Is(err, ui.ErrNoSelection) {
			return nil
		}
		return err
	}

	prompt, err := gatherPrompt(args)
	if err != nil {
		return err
	}

	// A leading /word routes the rest of the prompt through a codex
	// sub-command unless --command already named one.
	codexCommand := rootFlags.command
	if codexCommand == "" {
		codexCommand, prompt = promptio.SplitSubcommand(prompt)
	}
	for i := range agents {
		if agents[i].Name == agent.Codex {
			agents[i].Subcommand = codexCommand
		}
	}

	git, err := gitx.NewManager(mustGetwd())
	if err != nil {
		return err
	}
	git.Reporter = out

	orc := &run.Orchestrator{Git: git, Tmux: tm, Prompt: prompter, Out: out}
	if needsNamer(mode, prompt) {
		nm, err := namer.NewOpenAI()
		if err != nil {
			return err
		}
		orc.Namer = nm
	}

	req := run.Request{
		Mode:        mode,
		Prompt:      prompt,
		Agents:      agents,
		BranchName:  rootFlags.branch,
		NoWorktree:  rootFlags.noWorktree,
		FromBranch:  rootFlags.fromBranch,
		FromMaster:  rootFlags.fromMaster,
		SessionName: sessionName(),
	}
	if err := orc.Run(cmd.Context(), req); err != nil {
		return err
	}

	if notice := update.CheckPeriodically(version); notice != "" {
		out.Infof("%s", notice)
	}
	return nil
}

// resolveAgents maps the agent flags to a mode and descriptor list. With
// no agent flags on a terminal the interactive selector takes over.
func resolveAgents(prompter ui.Prompter) (run.Mode, []agent.Descriptor, error) {
	hasAgentFlags := rootFlags.codex || rootFlags.amp || rootFlags.oc ||
		rootFlags.duo || rootFlags.duoReview

	if !hasAgentFlags && prompter.Interactive() {
		sel, err := selector.Run(prompter)
		if err != nil {
			return 0, nil, err
		}
		switch sel.Mode {
		case selector.ModeDuo:
			return run.ModeDuo, sel.Agents, nil
		case selector.ModeReview:
			return run.ModeReview, sel.Agents, nil
		default:
			return run.ModeSingle, sel.Agents, nil
		}
	}

	duoAgents := []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}}

	if rootFlags.duo || rootFlags.duoReview {
		if rootFlags.codex || rootFlags.amp || rootFlags.oc {
			ui.New().Warnf("Warning: --duo mode runs claude + codex and ignores single-agent overrides")
		}
		if rootFlags.duoReview {
			return run.ModeReview, duoAgents, nil
		}
		return run.ModeDuo, duoAgents, nil
	}

	name := agent.Claude
	switch {
	case rootFlags.codex:
		name = agent.Codex
	case rootFlags.amp:
		name = agent.Amp
	case rootFlags.oc:
		name = agent.OpenCode
	}
	return run.ModeSingle, []agent.Descriptor{{Name: name}}, nil
}

func gatherPrompt(args []string) (string, error) {
	source := promptio.FromArgs
	switch {
	case rootFlags.stdin:
		source = promptio.FromStdin
	case rootFlags.editorMode:
		source = promptio.FromEditor
	case rootFlags.inputFile != "":
		source = promptio.FromFile
	}
	return promptio.Gather(promptio.Request{
		Source:   source,
		Args:     args,
		FilePath: rootFlags.inputFile,
		Editor:   promptio.EditorFromEnv(),
		Stdin:    os.Stdin,
	})
}

// needsNamer reports whether this invocation can reach branch-name
// synthesis. Empty prompts idle-attach, and review mode and no-worktree
// runs never name anything.
func needsNamer(mode run.Mode, prompt string) bool {
	return prompt != "" && mode != run.ModeReview && !rootFlags.noWorktree && rootFlags.branch == ""
}

func sessionName() string {
	if rootFlags.session != "" {
		return "vibe-" + rootFlags.session
	}
	return "vibe-" + filepath.Base(mustGetwd())
}

func printSessions(tm *tmux.Controller, out *ui.Output) error {
	sessions, err := tm.ListSessions("vibe-")
	if err != nil || len(sessions) == 0 {
		out.Infof("No active vibe sessions")
		return nil
	}
	out.Infof("Active vibe sessions:")
	for _, s := range sessions {
		out.Infof("  %s (%d windows)", out.Accent(s.Name), s.Windows)
	}
	return nil
}

func newMultiplexer() *tmux.Controller {
	socket := rootFlags.tmuxSocket
	if socket == "" {
		socket = os.Getenv("VIBE_TMUX_SOCKET")
	}
	return tmux.NewController(socket)
}

func mustGetwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

var mergeFlags struct {
	base        string
	keep        string
	merge       bool
	into        string
	mergeCommit bool
	force       bool
	noTmux      bool
	dryRun      bool
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge or clean up duo worktrees",
	Long: `Merge picks the surviving branch of a duo worktree pair, optionally
merges it into a target branch, and removes the losing worktree, branch
and tmux windows.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mergeFlags.keep != "" && mergeFlags.keep != agent.Claude && mergeFlags.keep != agent.Codex {
			return fmt.Errorf("invalid --keep value %q (expected claude or codex)", mergeFlags.keep)
		}

		out := ui.New()
		git, err := gitx.NewManager(mustGetwd())
		if err != nil {
			return err
		}
		git.Reporter = out

		rec := &merge.Reconciler{
			Git:    git,
			Tmux:   newMultiplexer(),
			Prompt: ui.NewTerminalPrompter(out),
			Out:    out,
		}
		return rec.Run(merge.Options{
			Base:        mergeFlags.base,
			Keep:        mergeFlags.keep,
			Merge:       mergeFlags.merge || mergeFlags.into != "",
			Into:        mergeFlags.into,
			MergeCommit: mergeFlags.mergeCommit,
			Force:       mergeFlags.force,
			NoTmux:      mergeFlags.noTmux,
			DryRun:      mergeFlags.dryRun,
			LabelA:      agent.Claude,
			LabelB:      agent.Codex,
		})
	},
}

var reviewFlags struct {
	project string
	base    string
	single  bool
	codex   bool
	prompt  string
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review worktrees created by vibe",
	Long: `Review re-opens an existing duo worktree pair in a split window and asks
both agents to compare the two implementations. With --single one agent
reviews the current tree instead.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := ui.New()

		if reviewFlags.project != "" {
			if err := os.Chdir(reviewFlags.project); err != nil {
				return err
			}
		}

		tm := newMultiplexer()
		if err := tm.EnsureAvailable(); err != nil {
			return err
		}
		if !tm.InsideSession() {
			return run.ErrOutsideTmux
		}

		git, err := gitx.NewManager(mustGetwd())
		if err != nil {
			return err
		}
		git.Reporter = out

		orc := &run.Orchestrator{Git: git, Tmux: tm, Prompt: ui.NewTerminalPrompter(out), Out: out}

		if reviewFlags.single {
			name := agent.Claude
			if reviewFlags.codex {
				name = agent.Codex
			}
			prompt := reviewFlags.prompt
			if prompt == "" {
				prompt = "Review the completed work, list issues, missing tests, and merge readiness."
			}
			return orc.Run(cmd.Context(), run.Request{
				Mode:       run.ModeSingle,
				Prompt:     prompt,
				Agents:     []agent.Descriptor{{Name: name}},
				NoWorktree: true,
			})
		}

		return orc.Run(cmd.Context(), run.Request{
			Mode:       run.ModeReview,
			Prompt:     reviewFlags.prompt,
			Agents:     []agent.Descriptor{{Name: agent.Claude}, {Name: agent.Codex}},
			ReviewBase: reviewFlags.base,
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active vibe sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSessions(newMultiplexer(), ui.New())
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade vibe to the latest version",
	Long:  `Downloads the latest release and replaces the running binary in place.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Current version: %s\n", version)
		fmt.Println("Checking for updates...")

		if err := update.Update(version); err != nil {
			fmt.Fprintf(os.Stderr, "Error running upgrade: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Upgrade complete. Restart vibe to use the new version.")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vibe version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vibe %s\n", version)
		if notice := update.CheckPeriodically(version); notice != "" {
			fmt.Println(notice)
		}
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&rootFlags.session, "session", "s", "", "Use specific session name (default: current directory name)")
	flags.StringVarP(&rootFlags.project, "project", "p", "", "Set project directory")
	flags.BoolVarP(&rootFlags.stdin, "stdin", "i", false, "Read input from standard input")
	flags.BoolVarP(&rootFlags.editorMode, "editor", "e", false, "Open editor for composing message")
	flags.StringVarP(&rootFlags.inputFile, "file", "f", "", "Read input from file")
	flags.BoolVar(&rootFlags.noWorktree, "no-worktree", false, "Run in current directory without creating a worktree")
	flags.StringVar(&rootFlags.branch, "branch", "", "Use an explicit branch name instead of generating one")
	flags.StringVar(&rootFlags.fromBranch, "from", "", "Start from specified branch instead of master")
	flags.BoolVar(&rootFlags.fromMaster, "from-master", false, "When in worktree, branch from master instead of current branch")
	flags.BoolVar(&rootFlags.list, "list", false, "List all active vibe sessions")
	flags.BoolVar(&rootFlags.codex, "codex", false, "Use codex agent instead of claude")
	flags.BoolVar(&rootFlags.amp, "amp", false, "Use amp agent instead of claude")
	flags.BoolVar(&rootFlags.oc, "oc", false, "Use oc (opencode) agent instead of claude")
	flags.BoolVar(&rootFlags.duo, "duo", false, "Run both claude and codex in a split tmux window")
	flags.BoolVar(&rootFlags.duoReview, "duo-review", false, "Review an existing duo worktree pair")
	flags.StringVar(&rootFlags.command, "command", "", "Codex command name (only meaningful for codex)")
	flags.StringVar(&rootFlags.tmuxSocket, "tmux-socket", "", "Use a dedicated tmux socket (default: $VIBE_TMUX_SOCKET)")

	mFlags := mergeCmd.Flags()
	mFlags.StringVar(&mergeFlags.base, "base", "", "Base name of the duo worktree pair to merge")
	mFlags.StringVar(&mergeFlags.keep, "keep", "", "Which agent branch to keep (claude or codex)")
	mFlags.BoolVar(&mergeFlags.merge, "merge", false, "Merge the kept branch into the current branch before cleanup")
	mFlags.StringVar(&mergeFlags.into, "into", "", "Merge the kept branch into this branch (implies --merge)")
	mFlags.BoolVar(&mergeFlags.mergeCommit, "merge-commit", false, "Allow a merge commit instead of fast-forward only")
	mFlags.BoolVar(&mergeFlags.force, "force", false, "Proceed even if worktrees have unstaged changes")
	mFlags.BoolVar(&mergeFlags.noTmux, "no-tmux", false, "Skip killing tmux windows")
	mFlags.BoolVar(&mergeFlags.dryRun, "dry-run", false, "Show planned actions without executing")

	rFlags := reviewCmd.Flags()
	rFlags.StringVar(&reviewFlags.project, "project", "", "Project directory containing the review worktrees (defaults to cwd)")
	rFlags.StringVar(&reviewFlags.base, "base", "", "Specific duo base name to review")
	rFlags.BoolVar(&reviewFlags.single, "single", false, "Run a single-agent review instead of duo")
	rFlags.BoolVar(&reviewFlags.codex, "codex", false, "Use codex for single-agent review")
	rFlags.StringVar(&reviewFlags.prompt, "prompt", "", "Custom review prompt")

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimPrefix(err.Error(), "Error: "))
		os.Exit(1)
	}
}
