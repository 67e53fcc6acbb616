package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a .flowconfig and data directory",
	Long: `Create a .flowconfig with default settings and the data directory it
names. Defaults to the current base path (FLOW_HOME, or the nearest directory
holding a .flowconfig, or the working directory).

Safe to run on an existing workspace: an existing .flowconfig is kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := ConfigMgr
		base := BasePath
		if len(args) > 0 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			base = abs
			mgr = core.NewConfigurationManager(abs)
		}
		if mgr == nil {
			return fmt.Errorf("configuration manager not initialized")
		}

		path, err := mgr.WriteDefaultConfig()
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}
		cfg, err := mgr.LoadGlobalConfig()
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}
		dataDir := cfg.Storage.Dir
		if !filepath.IsAbs(dataDir) {
			dataDir = filepath.Join(base, dataDir)
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config:  %s\n", path)
		fmt.Fprintf(out, "Data:    %s\n", dataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
