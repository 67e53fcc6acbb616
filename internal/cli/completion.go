package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for flow",
	Long: `Set up tab-completion for flow commands, flags and task, epic and
backlog IDs.

Supported shells: bash, zsh, fish, powershell

  eval "$(flow completion bash)"     load into the current session
  flow completion zsh --install      install into the user's completion dir`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

// shellCompletion describes how to generate and where to install the script
// for one shell. An empty dir means --install is unsupported.
type shellCompletion struct {
	gen  func(io.Writer) error
	dir  []string // relative to the home directory
	file string
	hint string
}

func shellCompletions() map[string]shellCompletion {
	return map[string]shellCompletion{
		"bash": {
			gen:  func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
			dir:  []string{".local", "share", "bash-completion", "completions"},
			file: "flow",
			hint: "Restart your shell or source the file above.",
		},
		"zsh": {
			gen:  rootCmd.GenZshCompletion,
			dir:  []string{".local", "share", "zsh", "site-functions"},
			file: "_flow",
			hint: "Make sure the directory above is in your fpath, then run: autoload -Uz compinit && compinit",
		},
		"fish": {
			gen:  func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
			dir:  []string{".config", "fish", "completions"},
			file: "flow.fish",
			hint: "New fish sessions pick the completions up automatically.",
		},
		"powershell": {
			gen: rootCmd.GenPowerShellCompletionWithDesc,
		},
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	sc, ok := shellCompletions()[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}
	if !completionInstall {
		return sc.gen(cmd.OutOrStdout())
	}
	if len(sc.dir) == 0 {
		return fmt.Errorf("automatic install is not supported for %s; add the output of 'flow completion %s' to your profile", args[0], args[0])
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	dir := filepath.Join(append([]string{home}, sc.dir...)...)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	target := filepath.Join(dir, sc.file)
	if err := writeCompletionFile(target, sc.gen); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s completions installed to %s\n%s\n", args[0], target, sc.hint)
	return nil
}

// writeCompletionFile writes the generated script to target and reports the
// close error when generation itself succeeded.
func writeCompletionFile(target string, gen func(io.Writer) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := gen(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Install completions into your home directory")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}
