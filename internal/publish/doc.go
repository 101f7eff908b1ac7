// Package publish reassembles the most advanced frame set into a video
// container and, when a destination is configured, uploads the container and
// frame tree to remote storage. Publishing is best-effort: every failure is
// reported as a warning on the Outcome and never aborts the run.
package publish
