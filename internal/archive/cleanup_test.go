package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepRemovesExpiredArchives(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "2026-05-01_1777700000.wav", 90*24*time.Hour)
	fresh := writeAged(t, dir, "2026-08-30_1787700000.wav", 24*time.Hour)

	if removed := Sweep(dir, 30); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired archive still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh archive removed")
	}
}

func TestSweepIgnoresNonArchiveFiles(t *testing.T) {
	dir := t.TempDir()
	// In-flight download, greeting scratch, dedup state: none may be swept
	// regardless of age.
	download := writeAged(t, dir, "abc123.wav", 90*24*time.Hour)
	mp3 := writeAged(t, dir, "ch-1.mp3", 90*24*time.Hour)
	state := writeAged(t, dir, "processed.json", 90*24*time.Hour)

	if removed := Sweep(dir, 30); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	for _, path := range []string{download, mp3, state} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("non-archive file %s removed", filepath.Base(path))
		}
	}
}

func TestSweepMissingDir(t *testing.T) {
	if removed := Sweep(filepath.Join(t.TempDir(), "absent"), 30); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}
