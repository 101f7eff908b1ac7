// Package logging assembles structured slog loggers and formatting helpers used
// across subclean components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, stages, and correlation IDs. Per-run log files are
// attached with TeeLogger and pruned with PruneRunLogs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
