// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Events cover run completion and errors so the orchestrator can
// emit consistent messages without duplicating HTTP glue.
package notifications
