package replay

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"rdpso/simulator/internal/logging"
)

func writeBundle(t *testing.T, root, name string, modTime time.Time, size int) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string][]byte{
		manifestFile: []byte("{}"),
		framesFile:   make([]byte, size),
	}
	for file, data := range files {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	return dir
}

func remainingBundles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestCleanerEnforcesMaxRuns(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	//1.- Seed three bundles plus a stray file the cleaner must ignore.
	writeBundle(t, tmp, "alpha", now.Add(-3*time.Hour), 64)
	writeBundle(t, tmp, "bravo", now.Add(-2*time.Hour), 32)
	writeBundle(t, tmp, "charlie", now.Add(-time.Hour), 48)
	if err := os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxRuns: 2}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	if got := remainingBundles(t, tmp); len(got) != 3 || got[0] != "bravo" || got[1] != "charlie" || got[2] != "notes.txt" {
		t.Fatalf("unexpected remaining entries %v", got)
	}
	stats := cleaner.Stats()
	if stats.Runs != 2 || stats.Removed != 1 || stats.Bytes != int64(32+48+4) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !stats.LastSweep.Equal(now) {
		t.Fatalf("expected sweep timestamp")
	}
}

func TestCleanerPrunesByAgeButProtectsActiveRun(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 7, 16, 9, 0, 0, 0, time.UTC)
	writeBundle(t, tmp, "old", now.Add(-72*time.Hour), 8)
	active := writeBundle(t, tmp, "active", now.Add(-48*time.Hour), 8)
	writeBundle(t, tmp, "fresh", now.Add(-time.Hour), 8)

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxAge: 36 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.Protect(func() string { return active })
	cleaner.RunOnce()

	if got := remainingBundles(t, tmp); len(got) != 2 || got[0] != "active" || got[1] != "fresh" {
		t.Fatalf("unexpected remaining bundles %v", got)
	}
}
