package preflight

import (
	"context"

	"subclean/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory, storage, and notification checks for cfg.
// Binary dependencies are reported separately by CheckSystemDeps.
func RunAll(ctx context.Context, cfg *config.Config, storage CredentialChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Publish directory", cfg.Paths.PublishDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Source.Mode == config.SourcePreStaged {
		results = append(results,
			CheckDirectoryAccess("Frames directory", cfg.Paths.FramesDir),
			CheckDirectoryAccess("Masks directory", cfg.Paths.MasksDir),
		)
	}

	results = append(results, CheckStorage(ctx, storage, cfg))

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
