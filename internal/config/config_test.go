package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subclean/internal/config"
	"subclean/internal/services"
)

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"USE_SYNTHETIC_DATA",
		"PIPELINE_DEVICE",
		"SUBCLEAN_SOURCE_URL",
		"S3_INPUT_URL",
		"SUBCLEAN_DEST_URL",
		"S3_OUTPUT_URL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigDerivesPathsFromDataDir(t *testing.T) {
	clearPipelineEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	dataDir := filepath.Join(tempHome, ".local", "share", "subclean")
	checks := map[string]string{
		"frames":  cfg.Paths.FramesDir,
		"masks":   cfg.Paths.MasksDir,
		"stage1":  cfg.Paths.Stage1Dir,
		"stage2":  cfg.Paths.Stage2Dir,
		"staging": cfg.Paths.StagingDir,
		"publish": cfg.Paths.PublishDir,
	}
	want := map[string]string{
		"frames":  filepath.Join(dataDir, "input_video"),
		"masks":   filepath.Join(dataDir, "masks"),
		"stage1":  filepath.Join(dataDir, "lama_output"),
		"stage2":  filepath.Join(dataDir, "zits_output"),
		"staging": filepath.Join(dataDir, "staging"),
		"publish": filepath.Join(dataDir, "output"),
	}
	for key, got := range checks {
		if got != want[key] {
			t.Fatalf("unexpected %s dir: got %q want %q", key, got, want[key])
		}
	}
	if cfg.Compute.Mode != config.ComputeAuto {
		t.Fatalf("expected auto compute mode, got %q", cfg.Compute.Mode)
	}
	if cfg.Compute.WeightsDir != filepath.Join(tempHome, ".cache", "subclean", "weights") {
		t.Fatalf("unexpected weights dir: %q", cfg.Compute.WeightsDir)
	}
	if cfg.Source.Synthetic {
		t.Fatal("expected synthetic disabled by default")
	}
	if !cfg.Stages.RequireOutput {
		t.Fatal("expected require_output enabled by default")
	}
	if cfg.Publish.ContainerName != "output_clean.mp4" {
		t.Fatalf("unexpected container name: %q", cfg.Publish.ContainerName)
	}
	if cfg.Publish.FPS != 30 || cfg.Publish.CRF != 18 {
		t.Fatalf("unexpected publish encoding defaults: fps=%d crf=%d", cfg.Publish.FPS, cfg.Publish.CRF)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	clearPipelineEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
data_dir = "~/work"
masks_dir = "/srv/masks"

[source]
mode = "remote"
url = "s3://videos/input/clip.mp4"

[compute]
mode = "CPU"

[stages]
timeout_seconds = 600
require_output = false

[publish]
destination_url = "s3://videos/output/"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.FramesDir != filepath.Join(tempHome, "work", "input_video") {
		t.Fatalf("unexpected frames dir: %q", cfg.Paths.FramesDir)
	}
	if cfg.Paths.MasksDir != "/srv/masks" {
		t.Fatalf("unexpected masks dir: %q", cfg.Paths.MasksDir)
	}
	if cfg.Source.Mode != config.SourceRemote {
		t.Fatalf("unexpected source mode: %q", cfg.Source.Mode)
	}
	if cfg.Compute.Mode != config.ComputeCPU {
		t.Fatalf("expected lowercase cpu mode, got %q", cfg.Compute.Mode)
	}
	if cfg.Stages.RequireOutput {
		t.Fatal("expected require_output to be disabled")
	}
	if cfg.Publish.DestinationURL != "s3://videos/output" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Publish.DestinationURL)
	}
}

func TestLoadHonoursEnvironmentFallbacks(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USE_SYNTHETIC_DATA", "true")
	t.Setenv("PIPELINE_DEVICE", "cuda")
	t.Setenv("S3_INPUT_URL", "s3://bucket/in.mp4")
	t.Setenv("S3_OUTPUT_URL", "s3://bucket/out")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Source.Synthetic {
		t.Fatal("expected USE_SYNTHETIC_DATA to enable synthetic source")
	}
	if cfg.Compute.Mode != config.ComputeGPU {
		t.Fatalf("expected cuda to map to gpu, got %q", cfg.Compute.Mode)
	}
	if cfg.Source.URL != "s3://bucket/in.mp4" {
		t.Fatalf("unexpected source url: %q", cfg.Source.URL)
	}
	if cfg.Publish.DestinationURL != "s3://bucket/out" {
		t.Fatalf("unexpected destination url: %q", cfg.Publish.DestinationURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"compute mode":   "[compute]\nmode = \"tpu\"\n",
		"remote no url":  "[source]\nmode = \"remote\"\n",
		"bad scheme":     "[source]\nurl = \"http://example.com/a.mp4\"\n",
		"band ratio":     "[source]\nmask_band_ratio = 1.5\n",
		"crf range":      "[publish]\ncrf = 70\n",
		"container path": "[publish]\ncontainer_name = \"out/clip.mp4\"\n",
		"stage command":  "[stages.stage1]\ncommand = \"\"\n",
		"log level":      "[logging]\nlevel = \"loud\"\n",
		"synthetic url":  "[source]\nmode = \"synthetic\"\nurl = \"s3://bucket/in.mp4\"\n",
		"pre-staged url": "[source]\nmode = \"pre-staged\"\nurl = \"file:///data/in.mp4\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearPipelineEnv(t)
			t.Setenv("HOME", t.TempDir())
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestApplyOverridesReplacesSourceMode(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USE_SYNTHETIC_DATA", "1")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Source.Synthetic {
		t.Fatal("expected synthetic from environment")
	}
	if err := cfg.ApplyOverrides(config.Overrides{SourceMode: "staged", ComputeMode: "cpu"}); err != nil {
		t.Fatalf("ApplyOverrides returned error: %v", err)
	}
	if cfg.Source.Mode != config.SourcePreStaged || cfg.Source.Synthetic {
		t.Fatalf("expected pre-staged override, got mode=%q synthetic=%v", cfg.Source.Mode, cfg.Source.Synthetic)
	}
	if cfg.Compute.Mode != config.ComputeCPU {
		t.Fatalf("unexpected compute mode: %q", cfg.Compute.Mode)
	}

	err = cfg.ApplyOverrides(config.Overrides{SourceMode: "remote"})
	if err == nil || !strings.Contains(err.Error(), "source.url") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestExplicitLocalModeIgnoresEnvironmentLocator(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SUBCLEAN_SOURCE_URL", "s3://bucket/in.mp4")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[source]\nmode = \"synthetic\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source.URL != "" || !cfg.Source.Synthetic {
		t.Fatalf("expected synthetic without locator, got url=%q synthetic=%v", cfg.Source.URL, cfg.Source.Synthetic)
	}
}

func TestApplyOverridesRejectsLocalModeWithLocator(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[source]\nurl = \"file:///data/in.mp4\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	for _, mode := range []string{"synthetic", "pre-staged"} {
		err := cfg.ApplyOverrides(config.Overrides{SourceMode: mode})
		if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "source.url") {
			t.Fatalf("mode %s: expected configuration error about source.url, got %v", mode, err)
		}
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	clearPipelineEnv(t)
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := loaded.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{loaded.Paths.FramesDir, loaded.Paths.MasksDir, loaded.Paths.StagingDir, loaded.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Stages.Stage1.Name != "lama" || cfg.Stages.Stage2.Name != "zits" {
		t.Fatalf("unexpected stage names: %q %q", cfg.Stages.Stage1.Name, cfg.Stages.Stage2.Name)
	}
	if cfg.Stages.Stage1.WorkDir != "/opt/lama" {
		t.Fatalf("unexpected stage1 work dir: %q", cfg.Stages.Stage1.WorkDir)
	}
}
