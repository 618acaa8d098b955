package checksum

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestChecksumIsStableAndPrefixed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n")

	sum1, err := Checksum(path)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	sum2, err := Checksum(path)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if sum1 != sum2 {
		t.Errorf("Checksum not stable: %q != %q", sum1, sum2)
	}
	if sum1[:7] != checksumPrefix {
		t.Errorf("Checksum = %q, want sha256: prefix", sum1)
	}
}

func TestChecksumMissingFile(t *testing.T) {
	if _, err := Checksum("/nonexistent/path/does/not/exist"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestQuickChangedNilCachedAlwaysChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")
	if !QuickChanged(path, nil) {
		t.Error("expected changed=true for nil cached metadata")
	}
}

func TestQuickChangedMatchingStatIsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	cached := &FileMetadata{ModTime: info.ModTime(), Size: info.Size()}

	if QuickChanged(path, cached) {
		t.Error("expected unchanged when mtime and size match")
	}
}

func TestQuickChangedSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")
	info, _ := os.Stat(path)

	cached := &FileMetadata{ModTime: info.ModTime(), Size: info.Size() + 1}
	if !QuickChanged(path, cached) {
		t.Error("expected changed when size differs")
	}
}

func TestQuickChangedMissingFile(t *testing.T) {
	cached := &FileMetadata{ModTime: time.Now(), Size: 1}
	if !QuickChanged("/nonexistent/path", cached) {
		t.Error("expected changed=true for missing file")
	}
}

func TestExactChangedDetectsContentDrift(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "original")

	sum, err := Checksum(path)
	if err != nil {
		t.Fatal(err)
	}
	cached := &FileMetadata{Checksum: sum}

	if ExactChanged(path, cached) {
		t.Error("expected unchanged for identical content")
	}

	writeFile(t, dir, "a.go", "different content, same mtime maybe")
	if !ExactChanged(path, cached) {
		t.Error("expected changed after content edit")
	}
}

func TestSnapshotProducesActiveStatus(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n")

	meta, err := Snapshot("proj1", path, "a.go", "go", "deadbeef")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if meta.Status != StatusActive {
		t.Errorf("Status = %q, want active", meta.Status)
	}
	if meta.Checksum == "" {
		t.Error("expected non-empty checksum")
	}
	if meta.ProjectID != "proj1" || meta.GitCommit != "deadbeef" {
		t.Errorf("unexpected snapshot fields: %+v", meta)
	}
}

func TestPartitionRoutesNewFilesAsChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")

	changed, unchanged := Partition([]string{path}, map[string]*FileMetadata{}, false)
	if len(changed) != 1 || len(unchanged) != 0 {
		t.Errorf("got changed=%v unchanged=%v, want new file routed to changed", changed, unchanged)
	}
}

func TestPartitionUnchangedWhenQuickCheckMatches(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")
	info, _ := os.Stat(path)

	cached := map[string]*FileMetadata{
		path: {ModTime: info.ModTime(), Size: info.Size()},
	}

	changed, unchanged := Partition([]string{path}, cached, false)
	if len(unchanged) != 1 || len(changed) != 0 {
		t.Errorf("got changed=%v unchanged=%v, want unchanged", changed, unchanged)
	}
}

func TestPartitionUsesExactCheckWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "x")
	sum, _ := Checksum(path)

	// Stale mtime/size forces the quick check to say "possibly changed",
	// but the checksum still matches, so exact-check mode should route to
	// unchanged rather than changed.
	cached := map[string]*FileMetadata{
		path: {ModTime: time.Now().Add(-time.Hour), Size: 999, Checksum: sum},
	}

	changed, unchanged := Partition([]string{path}, cached, true)
	if len(unchanged) != 1 || len(changed) != 0 {
		t.Errorf("got changed=%v unchanged=%v, want unchanged via exact check", changed, unchanged)
	}
}

func TestDiffPathsComputesNewAndDeleted(t *testing.T) {
	current := []string{"a.go", "b.go", "c.go"}
	cached := []string{"b.go", "c.go", "d.go"}

	newPaths, deletedPaths := DiffPaths(current, cached)
	if len(newPaths) != 1 || newPaths[0] != "a.go" {
		t.Errorf("newPaths = %v, want [a.go]", newPaths)
	}
	if len(deletedPaths) != 1 || deletedPaths[0] != "d.go" {
		t.Errorf("deletedPaths = %v, want [d.go]", deletedPaths)
	}
}

func TestBatchChecksumsSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.go", "package a\n")
	missing := filepath.Join(dir, "missing.go")

	results := BatchChecksums([]string{ok, missing}, 2)
	if _, present := results[ok]; !present {
		t.Error("expected checksum for readable file")
	}
	if _, present := results[missing]; present {
		t.Error("expected missing file to be skipped, not present in results")
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1", len(results))
	}
}
