// Package archive manages retention of processed voicemail recordings in
// the spool directory.
package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// archivePattern matches archived recordings, named date_timestamp.wav at
// the end of a pipeline run. Scratch downloads and greeting audio use
// other names and are never touched by the sweeper.
var archivePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d+\.wav$`)

// StartCleanupTicker runs a background goroutine that periodically removes
// archived recordings older than maxDays from spoolDir. A maxDays of 0
// disables cleanup. The goroutine stops when ctx is cancelled.
func StartCleanupTicker(ctx context.Context, spoolDir string, maxDays int, interval time.Duration) {
	if maxDays <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				Sweep(spoolDir, maxDays)
			}
		}
	}()
}

// Sweep removes archived recordings in spoolDir whose modification time is
// more than maxDays old, and returns how many were removed.
func Sweep(spoolDir string, maxDays int) int {
	entries, err := os.ReadDir(spoolDir)
	if err != nil {
		slog.Error("archive retention: failed to read spool directory",
			"dir", spoolDir, "error", err)
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -maxDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !archivePattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(spoolDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove archived recording", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("archive retention cleanup", "removed", removed, "max_days", maxDays)
	}
	return removed
}
