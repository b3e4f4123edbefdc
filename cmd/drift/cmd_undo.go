package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"drift/internal/snapshot"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Restore files from the last snapshotted run",
	Long: `Restores the most recent snapshot that has not been undone yet:
backed-up files are copied back, files created by the run are removed.
Running undo again steps back to the snapshot before that.`,
	Args: cobra.NoArgs,
	RunE: runUndo,
}

func init() {
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	snap, err := app.snapshots.LatestUnconsumed()
	if errors.Is(err, snapshot.ErrNoSnapshots) {
		return fmt.Errorf("nothing to undo")
	}
	if err != nil {
		return err
	}

	fmt.Println(app.styles.Warningf("this will restore %d path(s) to their state at %s",
		len(snap.Files), snap.CreatedAt.Local().Format("15:04:05")))

	ok, err := app.prompt.YesNo("Proceed with undo?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println(app.styles.Infof("Undo cancelled"))
		return nil
	}

	report, err := app.orch.Undo(ctx)
	if err != nil {
		return err
	}

	fmt.Print(app.styles.RenderRestore(report))
	return nil
}
