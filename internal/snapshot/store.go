package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"drift/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	metadataFile  = "metadata.json"
	stagingPrefix = ".staging-"
)

var validSnapshotID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// Store owns the on-disk snapshot directory. Callers hold identifiers
// only; the store is the sole writer under its root.
type Store struct {
	root        string
	allowedRoot string
}

// NewStore opens (creating if needed) a snapshot store rooted at root.
// Restores refuse to write to any path outside allowedRoot.
func NewStore(root, allowedRoot string) (*Store, error) {
	root, err := absolutize(root)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Path: root, Err: err}
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &StorageError{Op: "create", Path: root, Err: err}
	}

	allowed, err := absolutize(allowedRoot)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Path: allowedRoot, Err: err}
	}
	// Canonicalize so descent checks compare like with like. A root that
	// does not fully resolve keeps its cleaned form.
	if resolved, err := filepath.EvalSymlinks(allowed); err == nil {
		allowed = resolved
	}

	return &Store{root: root, allowedRoot: allowed}, nil
}

// Root returns the store's on-disk root directory.
func (s *Store) Root() string { return s.root }

// AllowedRoot returns the canonicalized root restores may write under.
func (s *Store) AllowedRoot() string { return s.allowedRoot }

// Create backs up the given paths into a new snapshot. Regular files are
// copied; paths that do not exist yet are recorded with an existed=false
// marker so a later restore deletes whatever was created there. Existing
// non-regular paths (directories, sockets) are not coverable and are
// skipped with a log line.
//
// The whole snapshot is staged first and promoted with a single rename.
// Any failure discards the staging directory and returns a *StorageError;
// there is no such thing as a partial snapshot.
func (s *Store) Create(ctx context.Context, paths []string) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}

	staging := filepath.Join(s.root, stagingPrefix+snap.ID)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, &StorageError{Op: "stage", Path: staging, Err: err}
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(staging)
		}
	}()

	seen := make(map[string]bool)
	for _, raw := range paths {
		path, err := absolutize(raw)
		if err != nil {
			return nil, &StorageError{Op: "resolve", Path: raw, Err: err}
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		info, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
			snap.Files = append(snap.Files, FileEntry{OriginalPath: path})
		case err != nil:
			return nil, &StorageError{Op: "stat", Path: path, Err: err}
		case !info.Mode().IsRegular():
			logging.Snapshot("skipping non-regular path %s (%s)", path, info.Mode())
		default:
			key := fmt.Sprintf("f%04d-%s", len(snap.Files), filepath.Base(path))
			snap.Files = append(snap.Files, FileEntry{
				OriginalPath: path,
				BackupKey:    key,
				Existed:      true,
			})
		}
	}

	// Backup copies are disjoint files; copy them in parallel.
	g, gctx := errgroup.WithContext(ctx)
	for i := range snap.Files {
		if !snap.Files[i].Existed {
			continue
		}
		entry := &snap.Files[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			written, err := copyFile(entry.OriginalPath, filepath.Join(staging, entry.BackupKey))
			if err != nil {
				return &StorageError{Op: "copy", Path: entry.OriginalPath, Err: err}
			}
			entry.SizeBytes = written
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var se *StorageError
		if !errors.As(err, &se) {
			err = &StorageError{Op: "copy", Path: staging, Err: err}
		}
		return nil, err
	}

	for _, f := range snap.Files {
		snap.TotalBytes += f.SizeBytes
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, &StorageError{Op: "encode", Path: staging, Err: err}
	}
	if err := os.WriteFile(filepath.Join(staging, metadataFile), meta, 0644); err != nil {
		return nil, &StorageError{Op: "write", Path: filepath.Join(staging, metadataFile), Err: err}
	}

	final := filepath.Join(s.root, snap.ID)
	if err := os.Rename(staging, final); err != nil {
		return nil, &StorageError{Op: "promote", Path: final, Err: err}
	}
	success = true

	logging.Snapshot("created %s: %d paths, %d bytes", snap.ID, len(snap.Files), snap.TotalBytes)
	return snap, nil
}

// Restore copies every backed-up file over its original path and deletes
// paths that did not exist at snapshot time. Before any write, every
// target is canonicalized and verified to descend from the allowed root; a
// single violation aborts with *PathError and the filesystem untouched.
//
// Targets already matching the snapshot state are skipped, so restoring
// the same snapshot twice is a no-op the second time.
func (s *Store) Restore(id string) (*RestoreReport, error) {
	snap, err := s.load(id)
	if err != nil {
		return nil, err
	}

	// Verify pass. No writes until every target is proven safe.
	targets := make([]string, len(snap.Files))
	for i, entry := range snap.Files {
		if entry.Existed {
			if !validBackupKey(entry.BackupKey) {
				return nil, &PathError{SnapshotID: id, Path: entry.BackupKey,
					Reason: "backup key escapes the snapshot directory"}
			}
		}
		if !filepath.IsAbs(entry.OriginalPath) {
			return nil, &PathError{SnapshotID: id, Path: entry.OriginalPath,
				Reason: "recorded path is not absolute"}
		}

		resolved, err := canonicalize(entry.OriginalPath)
		if err != nil {
			return nil, &PathError{SnapshotID: id, Path: entry.OriginalPath,
				Reason: fmt.Sprintf("cannot resolve: %v", err)}
		}
		if !within(s.allowedRoot, resolved) {
			return nil, &PathError{SnapshotID: id, Path: entry.OriginalPath,
				Reason: fmt.Sprintf("resolves to %s, outside allowed root %s", resolved, s.allowedRoot)}
		}
		targets[i] = resolved
	}

	report := &RestoreReport{SnapshotID: id}
	for i, entry := range snap.Files {
		target := targets[i]

		if !entry.Existed {
			if _, err := os.Lstat(target); os.IsNotExist(err) {
				report.Skipped = append(report.Skipped, target)
				continue
			}
			if err := os.RemoveAll(target); err != nil {
				return nil, &StorageError{Op: "delete", Path: target, Err: err}
			}
			report.Deleted = append(report.Deleted, target)
			continue
		}

		backup := filepath.Join(s.root, id, entry.BackupKey)
		if same, _ := filesEqual(backup, target); same {
			report.Skipped = append(report.Skipped, target)
			continue
		}
		if _, err := copyFile(backup, target); err != nil {
			return nil, &StorageError{Op: "restore", Path: target, Err: err}
		}
		report.Restored = append(report.Restored, target)
	}

	logging.Snapshot("restored %s: %d restored, %d deleted, %d unchanged",
		id, len(report.Restored), len(report.Deleted), len(report.Skipped))
	return report, nil
}

// Consume deletes a snapshot after a successful undo. Consuming an already
// deleted snapshot is a no-op.
func (s *Store) Consume(id string) error {
	if !validSnapshotID.MatchString(id) {
		return &PathError{SnapshotID: id, Path: id, Reason: "invalid snapshot identifier"}
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return &StorageError{Op: "consume", Path: id, Err: err}
	}
	logging.Snapshot("consumed %s", id)
	return nil
}

// List returns snapshot metadata, newest first. Entries whose metadata
// cannot be read are skipped with a log line.
func (s *Store) List() ([]Snapshot, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StorageError{Op: "list", Path: s.root, Err: err}
	}

	var snaps []Snapshot
	for _, de := range dirEntries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		snap, err := s.load(de.Name())
		if err != nil {
			logging.Snapshot("skipping unreadable snapshot %s: %v", de.Name(), err)
			continue
		}
		snaps = append(snaps, *snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID > snaps[j].ID
	})
	return snaps, nil
}

// LatestUnconsumed returns the newest snapshot still on disk, the only one
// undo may reference. Returns ErrNoSnapshots when the store is empty.
func (s *Store) LatestUnconsumed() (*Snapshot, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoSnapshots
	}
	return &snaps[0], nil
}

// Prune deletes snapshots beyond the retention policy and returns how many
// were removed. The keepNewest newest survive regardless of age; of the
// rest, only those older than olderThan are deleted. Leftover staging
// directories from interrupted creations are swept as a side effect.
// History records referencing pruned snapshots are never touched; their
// undo simply becomes inapplicable.
func (s *Store) Prune(keepNewest int, olderThan time.Duration) (int, error) {
	if keepNewest < 0 {
		keepNewest = 0
	}

	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, &StorageError{Op: "list", Path: s.root, Err: err}
	}
	for _, de := range dirEntries {
		if de.IsDir() && strings.HasPrefix(de.Name(), stagingPrefix) {
			os.RemoveAll(filepath.Join(s.root, de.Name()))
		}
	}

	snaps, err := s.List()
	if err != nil {
		return 0, err
	}

	pruned := 0
	cutoff := time.Now().Add(-olderThan)
	for i, snap := range snaps {
		if i < keepNewest {
			continue
		}
		if snap.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, snap.ID)); err != nil {
			logging.SnapshotError("pruning %s: %v", snap.ID, err)
			continue
		}
		pruned++
	}

	if pruned > 0 {
		logging.Snapshot("pruned %d snapshots (keep %d, max age %s)", pruned, keepNewest, olderThan)
	}
	return pruned, nil
}

// load reads one snapshot's metadata, validating the identifier shape
// first so a crafted id can never escape the store root.
func (s *Store) load(id string) (*Snapshot, error) {
	if !validSnapshotID.MatchString(id) {
		return nil, &PathError{SnapshotID: id, Path: id, Reason: "invalid snapshot identifier"}
	}

	data, err := os.ReadFile(filepath.Join(s.root, id, metadataFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: id, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StorageError{Op: "decode", Path: id, Err: err}
	}
	if snap.ID != id {
		return nil, &StorageError{Op: "verify", Path: id,
			Err: fmt.Errorf("metadata names %q", snap.ID)}
	}
	return &snap, nil
}

func validBackupKey(key string) bool {
	return key != "" &&
		!strings.ContainsAny(key, `/\`) &&
		!strings.HasPrefix(key, ".")
}

// within reports whether path is root itself or a descendant of it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonicalize resolves symlinks in path. The path itself may not exist
// yet (a restore may be about to delete or recreate it), so symlinks are
// resolved on the nearest existing ancestor and the remainder re-appended.
func canonicalize(path string) (string, error) {
	path = filepath.Clean(path)

	remainder := ""
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		remainder = filepath.Join(filepath.Base(cur), remainder)
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, remainder), nil
}

// absolutize expands a leading ~ and makes the path absolute.
func absolutize(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// copyFile copies src to dst, creating parent directories and carrying the
// source's permission bits. Returns the number of bytes copied.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return written, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return written, err
	}
	if err := out.Close(); err != nil {
		return written, err
	}
	// An existing destination keeps its old mode through OpenFile.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return written, err
	}
	return written, nil
}

// filesEqual reports whether two files have identical content. Any read
// trouble counts as unequal so the caller falls through to a real copy.
func filesEqual(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if !ia.Mode().IsRegular() || !ib.Mode().IsRegular() || ia.Size() != ib.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}
