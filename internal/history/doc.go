// Package history persists a ledger of pipeline runs in SQLite.
//
// Each terminal run is recorded once with its classification, acquisition
// strategy, per-stage statuses, and publish locations. The ledger backs the
// `subclean history` command and is written best-effort by the orchestrator.
package history
