// Package config loads, normalizes, and validates subclean configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// USE_SYNTHETIC_DATA, PIPELINE_DEVICE, and the source/destination locator
// variables used by container deployments. Directory fields left empty are
// derived from paths.data_dir so a single knob relocates the whole workspace.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical modes, and clear validation errors.
package config
