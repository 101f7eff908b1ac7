package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subclean/internal/config"
	"subclean/internal/media/ffprobe"
	"subclean/internal/media/frames"
	"subclean/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Source.FrameWidth, cfg.Source.FrameHeight = 32, 32
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, key := range []string{"SUBCLEAN_SOURCE_URL", "S3_INPUT_URL", "SUBCLEAN_DEST_URL", "S3_OUTPUT_URL", "PIPELINE_DEVICE"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(homeDir, ".config", "subclean", "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// stubMuxer makes ffmpeg write one line per staged frame and ffprobe count
// those lines.
func stubMuxer(t *testing.T) {
	t.Helper()
	restoreFFmpeg := frames.SetRunnerForTests(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		var seqDir string
		for i, arg := range args {
			if arg == "-i" && i+1 < len(args) {
				seqDir = filepath.Dir(args[i+1])
			}
		}
		names, err := frames.List(seqDir)
		if err != nil {
			return nil, err
		}
		return nil, os.WriteFile(args[len(args)-1], []byte(strings.Join(names, "\n")), 0o644)
	})
	restoreProbe := ffprobe.SetRunnerForTests(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		data, err := os.ReadFile(args[len(args)-1])
		if err != nil {
			return nil, err
		}
		n := len(strings.Split(strings.TrimSpace(string(data)), "\n"))
		return []byte(fmt.Sprintf(`{"streams":[{"codec_type":"video","nb_read_frames":"%d"}],"format":{}}`, n)), nil
	})
	t.Cleanup(func() {
		restoreFFmpeg()
		restoreProbe()
	})
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
