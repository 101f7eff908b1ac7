package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"subclean/internal/config"
	"subclean/internal/deps"
	"subclean/internal/hardware"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckNtfy verifies the ntfy server hosting topic answers HTTP requests.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, topic, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (topic protected)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CredentialChecker resolves credentials for remote locators without
// transferring data.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, locators ...string) error
}

// CheckStorage verifies credentials for every configured remote locator.
func CheckStorage(ctx context.Context, checker CredentialChecker, cfg *config.Config) Result {
	const name = "Remote storage"

	var locators []string
	if cfg.Source.URL != "" && cfg.Source.Mode != config.SourceSynthetic && cfg.Source.Mode != config.SourcePreStaged {
		locators = append(locators, cfg.Source.URL)
	}
	if cfg.Publish.DestinationURL != "" {
		locators = append(locators, cfg.Publish.DestinationURL)
	}
	if len(locators) == 0 {
		return Result{Name: name, Passed: true, Detail: "Not configured"}
	}
	if checker == nil {
		return Result{Name: name, Detail: "no storage backend"}
	}
	if err := checker.CheckCredentials(ctx, locators...); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(locators, ", ")}
}

// CheckCompute reports the device the profiler selected. It always passes;
// a CPU fallback is a valid configuration.
func CheckCompute(ctx context.Context, profiler *hardware.Profiler) Result {
	const name = "Compute"

	profile := profiler.Profile(ctx)
	detail := string(profile.Compute)
	if len(profile.GPUs) > 0 {
		gpu := profile.GPUs[0]
		detail = fmt.Sprintf("%s (%s, %d MiB)", detail, gpu.Name, gpu.MemoryMiB)
		if len(profile.GPUs) > 1 {
			detail = fmt.Sprintf("%s +%d more", detail, len(profile.GPUs)-1)
		}
	}
	if profile.Detail != "" {
		detail = fmt.Sprintf("%s: %s", detail, profile.Detail)
	}
	if profile.FetchWeights {
		detail += "; weights will be fetched"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates all binary dependencies for the given config.
func CheckSystemDeps(cfg *config.Config) deps.Report {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for frame extraction and reassembly",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for container verification",
		},
		{
			Name:        "nvidia-smi",
			Command:     cfg.NvidiaSMIBinary(),
			Description: "GPU detection; CPU is used when absent",
			Optional:    true,
		},
		{
			Name:        stageLabel("Stage 1", cfg.Stages.Stage1.Name),
			Command:     cfg.Stages.Stage1.Command,
			Description: "Frame inpainting",
		},
		{
			Name:        stageLabel("Stage 2", cfg.Stages.Stage2.Name),
			Command:     cfg.Stages.Stage2.Command,
			Description: "Temporal refinement",
		},
	}
	return deps.Check(requirements)
}

func stageLabel(label, name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return fmt.Sprintf("%s (%s)", label, name)
	}
	return label
}
