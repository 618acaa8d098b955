// Package checksum implements two-tier file change detection: a cheap
// mtime+size quick check, and a streaming SHA-256 exact check used when
// the quick check is inconclusive.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// streamBlockSize is the read buffer size for the exact-check hash.
	streamBlockSize = 64 * 1024
	// checksumPrefix is prepended to every hex digest this package produces.
	checksumPrefix = "sha256:"
	// defaultBatchWorkers bounds BatchChecksums' parallelism.
	defaultBatchWorkers = 4
)

// FileMetadata is the cached snapshot a previous indexing run recorded for
// one file, used by the quick and exact checks as the comparison baseline.
type FileMetadata struct {
	ProjectID    string
	Path         string
	RelPath      string
	Language     string
	Checksum     string
	Size         int64
	ModTime      time.Time
	GitCommit    string
	GitBlobHash  string
	Status       string
	IndexedAt    time.Time
	LastCheckAt  time.Time
	ChunkCount   int
	EmbeddingIDs []string
}

// Status values a FileMetadata snapshot can carry.
const (
	StatusActive   = "active"
	StatusDeleted  = "deleted"
	StatusModified = "modified"
)

// Checksum computes the file's streaming SHA-256 digest, prefixed
// "sha256:". A missing or unreadable file returns an error; callers that
// want "treat as changed" semantics should check os.IsNotExist/permission
// errors and route accordingly rather than treat err as fatal.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, streamBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}

	return checksumPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// QuickChanged reports whether path might have changed since cached was
// snapshotted, using only a stat call. A nil cached is always "changed"
// (no baseline to compare against). A file that can no longer be stat'd
// is also treated as changed, so the orchestrator re-attempts it.
func QuickChanged(path string, cached *FileMetadata) bool {
	if cached == nil {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.ModTime() != cached.ModTime || info.Size() != cached.Size
}

// ExactChanged reports whether path's content differs from cached's
// recorded checksum, by streaming the file through SHA-256. A nil cached,
// or a file that can't be read, is treated as changed.
func ExactChanged(path string, cached *FileMetadata) bool {
	if cached == nil {
		return true
	}
	sum, err := Checksum(path)
	if err != nil {
		return true
	}
	return sum != cached.Checksum
}

// Snapshot builds a fresh, active FileMetadata for path as of now.
func Snapshot(projectID, path, relPath, language, gitCommit string) (*FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	sum, err := Checksum(path)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &FileMetadata{
		ProjectID:   projectID,
		Path:        path,
		RelPath:     relPath,
		Language:    language,
		Checksum:    sum,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		GitCommit:   gitCommit,
		Status:      StatusActive,
		IndexedAt:   now,
		LastCheckAt: now,
	}, nil
}

// Partition splits files into (changed, unchanged) against cached,
// keyed by the same path values used in files. The quick check decides
// first; when it reports "possibly changed" and useChecksum is set, the
// exact check makes the final call. Without useChecksum, any quick-check
// mismatch is routed straight to changed.
func Partition(files []string, cached map[string]*FileMetadata, useChecksum bool) (changed, unchanged []string) {
	for _, path := range files {
		meta := cached[path]
		if meta == nil {
			changed = append(changed, path)
			continue
		}

		if !QuickChanged(path, meta) {
			unchanged = append(unchanged, path)
			continue
		}

		if useChecksum {
			if ExactChanged(path, meta) {
				changed = append(changed, path)
			} else {
				unchanged = append(unchanged, path)
			}
			continue
		}

		changed = append(changed, path)
	}
	return changed, unchanged
}

// DiffPaths returns the paths present in current but not in cached (new)
// and the paths present in cached but not in current (deleted).
func DiffPaths(current, cached []string) (newPaths, deletedPaths []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, p := range current {
		currentSet[p] = struct{}{}
	}
	cachedSet := make(map[string]struct{}, len(cached))
	for _, p := range cached {
		cachedSet[p] = struct{}{}
	}

	for _, p := range current {
		if _, ok := cachedSet[p]; !ok {
			newPaths = append(newPaths, p)
		}
	}
	for _, p := range cached {
		if _, ok := currentSet[p]; !ok {
			deletedPaths = append(deletedPaths, p)
		}
	}
	return newPaths, deletedPaths
}

// BatchChecksums computes Checksum for every path in parallel, bounded by
// workers (defaultBatchWorkers when workers <= 0). A path that fails to
// checksum is logged and omitted from the result map — failures are not
// fatal to the batch.
func BatchChecksums(paths []string, workers int) map[string]string {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	results := make(map[string]string, len(paths))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			sum, err := Checksum(path)
			if err != nil {
				slog.Warn("checksum failed, skipping file",
					slog.String("file_path", path),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			results[path] = sum
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
