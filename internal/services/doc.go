// Package services defines shared utilities consumed by the pipeline
// components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     tell run-ending failures (configuration, missing input) apart from the
//     ones it folds into stage and publish outcomes.
//   - The inference subpackage, which hides external stage processes behind a
//     single capability so tests can substitute deterministic stand-ins.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the pipeline.
package services
