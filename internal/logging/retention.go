package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRunLogs removes run-*.log files in dir whose modification time is older
// than retentionDays. Zero or negative retention disables pruning. The number
// of removed files is returned.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, now time.Time) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, RunLogName("*")))
	if err != nil {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log prune failed", "log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on the log directory"),
				String(FieldImpact, "old run log remains on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Debug("run logs pruned", Int("count", removed), String(FieldEventType, "log_pruned"))
	}
	return removed
}
