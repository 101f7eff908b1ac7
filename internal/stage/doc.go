// Package stage holds the shared vocabulary for pipeline stages: the
// precondition gate that decides whether a stage may run, the immutable
// Outcome a stage produces, and Health records used by preflight reporting.
package stage
