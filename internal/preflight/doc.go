// Package preflight provides readiness checks for external binaries,
// filesystem paths, and remote services that subclean depends on.
//
// The `subclean check` command renders every result; the orchestrator runs
// the storage credential check before acquisition so a misconfigured
// destination fails fast with a configuration error.
package preflight
