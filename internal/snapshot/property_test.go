package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Restoring twice always lands on the same filesystem state as restoring
// once, whatever the original content and however the plan mangled it.
func TestProperty_RestoreIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("restore twice == restore once", prop.ForAll(
		func(original, mutated string, deleteInstead bool) bool {
			store, allowed := newTestStore(t)
			target := filepath.Join(allowed, "data.txt")
			writeFile(t, target, original)

			snap, err := store.Create(context.Background(), []string{target})
			if err != nil {
				return false
			}

			if deleteInstead {
				if err := os.Remove(target); err != nil {
					return false
				}
			} else {
				writeFile(t, target, mutated)
			}

			if _, err := store.Restore(snap.ID); err != nil {
				return false
			}
			once := treeState(t, allowed)

			if _, err := store.Restore(snap.ID); err != nil {
				return false
			}
			twice := treeState(t, allowed)

			return cmp.Diff(once, twice) == "" && once[target] == original
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Prune never removes the keepNewest newest snapshots, no matter how old
// they are or how many exist.
func TestProperty_PruneKeepsNewest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("N newest survive pruning", prop.ForAll(
		func(count, keep int) bool {
			store, allowed := newTestStore(t)
			target := filepath.Join(allowed, "data.txt")
			writeFile(t, target, "x")

			var ids []string
			for i := 0; i < count; i++ {
				snap, err := store.Create(context.Background(), []string{target})
				if err != nil {
					return false
				}
				// Make every snapshot ancient so only keepNewest protects it.
				backdate(t, store, snap.ID, time.Now().AddDate(0, 0, -(count-i)*10-30))
				ids = append(ids, snap.ID)
			}

			pruned, err := store.Prune(keep, 24*time.Hour)
			if err != nil {
				return false
			}

			want := count - keep
			if want < 0 {
				want = 0
			}
			if pruned != want {
				return false
			}

			snaps, err := store.List()
			if err != nil {
				return false
			}
			if len(snaps) != count-want {
				return false
			}
			// Survivors are exactly the newest ones, newest first.
			for i, snap := range snaps {
				if snap.ID != ids[count-1-i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}
