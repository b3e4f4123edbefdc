// Package main implements the drift CLI: natural language in, reviewed
// shell commands out. Every plan is classified before anything runs,
// risky plans need explicit confirmation, and file-touching plans are
// snapshotted so they can be rolled back.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"drift/internal/config"
	"drift/internal/logging"
)

// Global flags
var (
	verbose    bool
	configPath string
)

// cfg and logger are initialized in PersistentPreRunE and available to
// every command's RunE. configErr holds the load or validation failure
// when the command runs on defaults instead.
var (
	cfg       *config.Config
	logger    *zap.Logger
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "drift [query...]",
	Short: "Terminal-native, safety-first AI shell assistant",
	Long: `drift turns natural language into reviewed shell commands.

Generated plans are classified against an ordered rule set before anything
runs: forbidden commands are refused outright, high-risk plans demand a
typed 'YES', and plans that touch files are snapshotted first so
'drift undo' can roll them back.

Examples:
  drift "list the 10 largest files here"
  drift suggest "compress every log older than a week"
  drift find "that yaml file with the retry settings"
  drift explain "tar -xzvf backup.tar.gz"
  drift undo`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(path)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			// doctor diagnoses broken configs and setup repairs them,
			// so those run on defaults instead of dying here.
			if !runsWithoutConfig(cmd) {
				return err
			}
			configErr = err
			cfg = config.DefaultConfig()
		}

		if err := logging.Initialize(config.StateDir(), cfg.Logging.Debug || verbose); err != nil {
			return err
		}

		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	// A bare query works without naming the suggest subcommand.
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runSuggest(cmd, args)
	},
}

func runsWithoutConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "doctor", "setup", "version":
		return true
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.drift/config.yaml, DRIFT_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
