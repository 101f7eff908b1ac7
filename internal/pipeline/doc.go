// Package pipeline owns the run state machine.
//
// A run moves through init, profiled, acquired, stage1_done, stage2_done and
// published before it is classified as success, partial, or failed. Every
// transition decision lives here; the collaborators (profiler, acquirer,
// stage runner, publisher) only report what happened.
//
// Only two kinds of error unwind a run early: configuration errors (exit 2)
// and missing input (terminal failed, exit 1). Stage and publish failures are
// folded into the Report and the run continues best-effort.
package pipeline
