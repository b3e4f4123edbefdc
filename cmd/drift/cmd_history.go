package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"drift/internal/config"
	"drift/internal/history"
	"drift/internal/memory"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent drift runs",
	RunE:  runHistory,
}

var againCmd = &cobra.Command{
	Use:   "again",
	Short: "Re-run the last executed plan",
	Long: `Takes the most recently executed plan from history and drives it
through the full pipeline again: classification, confirmation, snapshot,
execution. The plan is not regenerated, so you get exactly the commands
you approved last time.`,
	Args: cobra.NoArgs,
	RunE: runAgain,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Entries to show (default from config)")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(againCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	limit := historyLimit
	if limit <= 0 {
		limit = cfg.History.DisplayLimit
	}

	records, err := app.history.Recent(limit)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(app.styles.RenderHistory(records))
	return nil
}

func runAgain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	last, err := app.history.LastExecuted()
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no executed plan to re-run")
	}
	if err != nil {
		return err
	}

	var mem *memory.Store
	if !noMemory {
		if m, err := memory.Open(config.StateDir()); err == nil {
			mem = m
		}
	}

	fmt.Println(app.styles.Infof("Re-running: %s", last.Query))
	return runPlan(ctx, app, mem, last.Query, last.Plan)
}
