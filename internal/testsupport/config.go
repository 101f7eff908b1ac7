package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"subclean/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		DataDir:    base,
		FramesDir:  filepath.Join(base, "input_video"),
		MasksDir:   filepath.Join(base, "masks"),
		Stage1Dir:  filepath.Join(base, "lama_output"),
		Stage2Dir:  filepath.Join(base, "zits_output"),
		StagingDir: filepath.Join(base, "staging"),
		PublishDir: filepath.Join(base, "output"),
		LogDir:     filepath.Join(base, "logs"),
	}
	cfgVal.Compute.Mode = config.ComputeCPU
	cfgVal.Compute.WeightsDir = filepath.Join(base, "weights")
	cfgVal.Source.Mode = config.SourcePreStaged
	cfgVal.Source.SyntheticFrames = 4
	cfgVal.Storage.RetryInitialMillis = 1
	cfgVal.Storage.RetryMaxMillis = 2
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSynthetic switches acquisition to generated frames.
func WithSynthetic(frames int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Mode = config.SourceSynthetic
		b.cfg.Source.Synthetic = true
		if frames > 0 {
			b.cfg.Source.SyntheticFrames = frames
		}
	}
}

// WithRemoteSource sets a source locator and selects remote acquisition.
func WithRemoteSource(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Mode = config.SourceRemote
		b.cfg.Source.URL = url
	}
}

// WithDestination sets the publish destination locator.
func WithDestination(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.DestinationURL = url
	}
}

// WithStageScript writes a shell script and configures it as the command for
// the named stage ("stage1" or "stage2"). The script receives the frames,
// masks, stage-1, and output directories as $1..$4.
func WithStageScript(stageName, body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, stageName+".sh")
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stage script %s: %v", stageName, err)
		}
		cmd := config.StageCommand{
			Name:    stageName,
			Command: target,
			Args:    []string{"{frames}", "{masks}", "{stage1}", "{output}"},
		}
		switch stageName {
		case "stage1":
			b.cfg.Stages.Stage1 = cmd
		case "stage2":
			b.cfg.Stages.Stage2 = cmd
		default:
			b.t.Fatalf("unknown stage %q", stageName)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
