package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/config"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the default config and create the state directories",
	Long: `Creates ~/.drift with the default config.yaml, the snapshot
directory, and the logs directory. An existing config is left alone
unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	styles := ui.NewStyles()

	state := config.StateDir()
	for _, dir := range []string{state, cfg.Snapshots.Dir, filepath.Join(state, "logs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	fmt.Println(styles.Successf("state directory ready: %s", state))

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !setupForce {
		fmt.Println(styles.Infof("config already exists: %s (use --force to overwrite)", path))
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Println(styles.Successf("wrote default config: %s", path))
	fmt.Println(styles.Muted.Render("edit it to pick a provider, executor backend, or sandbox root"))
	return nil
}
