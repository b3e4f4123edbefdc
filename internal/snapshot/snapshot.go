// Package snapshot creates and restores point-in-time backups of the files
// a plan is expected to touch, so an executed operation can be reversed.
//
// Each snapshot is a directory under the store root named by a generated
// identifier, holding backup copies plus a metadata.json describing the
// original path, whether it existed at snapshot time, and the key of its
// backup file. Creation stages everything in a hidden directory and
// promotes it with a single rename, so a crash mid-creation never leaves a
// partially usable snapshot. Restores verify every target path resolves
// inside the allowed root before a single byte is written.
package snapshot

import (
	"errors"
	"fmt"
	"time"
)

// FileEntry records one path covered by a snapshot.
type FileEntry struct {
	// OriginalPath is the absolute path the backup was taken from.
	OriginalPath string `json:"original_path"`
	// BackupKey names the backup file inside the snapshot directory.
	// Empty when the path did not exist at snapshot time.
	BackupKey string `json:"backup_key,omitempty"`
	// Existed is false when the path was absent at snapshot time; a
	// restore then deletes whatever the executed plan created there.
	Existed bool `json:"existed"`
	// SizeBytes is the backed-up size. Zero when Existed is false.
	SizeBytes int64 `json:"size_bytes"`
}

// Snapshot is the metadata for one point-in-time backup. Immutable after
// creation.
type Snapshot struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	Files      []FileEntry `json:"files"`
	TotalBytes int64       `json:"total_bytes"`
}

// RestoreReport describes what a restore did per path.
type RestoreReport struct {
	SnapshotID string
	// Restored paths had their backed-up content copied back.
	Restored []string
	// Deleted paths did not exist at snapshot time and were removed.
	Deleted []string
	// Skipped paths already matched the snapshot state; restoring again
	// is a no-op, which is what makes restore idempotent.
	Skipped []string
}

// StorageError reports a failure to durably create or read snapshot state.
// A creation failure discards the whole staged snapshot; callers must not
// proceed to execution without the protection they asked for.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("snapshot storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PathError reports a restore target that cannot be proven to live inside
// the allowed root. The restore aborts before any write.
type PathError struct {
	SnapshotID string
	Path       string
	Reason     string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("snapshot %s: path %q: %s", e.SnapshotID, e.Path, e.Reason)
}

var (
	// ErrNotFound is returned when a snapshot identifier has no backing
	// directory, typically because it was pruned or consumed by an undo.
	ErrNotFound = errors.New("snapshot not found")
	// ErrNoSnapshots is returned by LatestUnconsumed when the store is
	// empty.
	ErrNoSnapshots = errors.New("no snapshots available")
)
