// Package main hosts the subclean CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, applies command-line
// overrides, and hands a run to the pipeline orchestrator. Auxiliary commands
// cover hardware profiling, preflight checks, synthetic data generation, the
// run history ledger, and configuration scaffolding.
//
// Keep this package thin: behavior lives in the internal packages and is only
// surfaced here.
package main
