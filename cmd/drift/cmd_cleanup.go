package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Unattended cleanup policy: prune only once the store has grown well past
// everyday use, keeping a generous recent window.
const (
	autoCleanupThreshold  = 100
	autoCleanupKeep       = 50
	autoCleanupMaxAgeDays = 30
)

var (
	cleanupKeep int
	cleanupDays int
	cleanupAuto bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old snapshots and free disk space",
	Long: `Prunes snapshot backups past the retention policy. History records
stay; their undo just becomes inapplicable.

With --auto nothing is asked and pruning only happens once the store
holds more than 100 snapshots, keeping the newest 50 and anything younger
than 30 days. That is the same policy suggest applies silently.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVarP(&cleanupKeep, "keep", "k", autoCleanupKeep, "Recent snapshots to keep")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", autoCleanupMaxAgeDays, "Max snapshot age in days")
	cleanupCmd.Flags().BoolVarP(&cleanupAuto, "auto", "a", false, "Unattended mode: no prompt, prune only past the threshold")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	snaps, err := app.snapshots.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println(app.styles.Infof("No snapshots to clean up"))
		return nil
	}

	sizeBefore := dirSize(cfg.Snapshots.Dir)
	fmt.Println(app.styles.Infof("Snapshots: %d (%.1f MB)", len(snaps), mb(sizeBefore)))

	keep, days := cleanupKeep, cleanupDays
	if cleanupAuto {
		if len(snaps) <= autoCleanupThreshold {
			fmt.Println(app.styles.Infof("Below the cleanup threshold, nothing to do"))
			return nil
		}
		keep, days = autoCleanupKeep, autoCleanupMaxAgeDays
	} else {
		ok, err := app.prompt.YesNo(fmt.Sprintf("Delete snapshots older than %d days (keep %d)?", days, keep))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	deleted, err := app.orch.Cleanup(keep, days)
	if err != nil {
		return err
	}
	if deleted == 0 {
		fmt.Println(app.styles.Infof("Nothing to clean up"))
		return nil
	}

	freed := mb(sizeBefore - dirSize(cfg.Snapshots.Dir))
	fmt.Println(app.styles.Successf("deleted %d snapshot(s), freed %.1f MB", deleted, freed))
	return nil
}

// dirSize sums file sizes under dir; best effort, 0 on error.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

func mb(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
