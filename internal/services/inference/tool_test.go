package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"subclean/internal/config"
)

type stubExecutor struct {
	lines []string
	code  int
	err   error
	got   Command
}

func (s *stubExecutor) Run(_ context.Context, c Command, onLine func(string)) (int, error) {
	s.got = c
	for _, line := range s.lines {
		onLine(line)
	}
	return s.code, s.err
}

func TestCommandToolRendersTemplates(t *testing.T) {
	exec := &stubExecutor{lines: []string{"loading model", "done"}}
	tool, err := NewCommandTool(config.StageCommand{
		Name:    "zits",
		Command: "python",
		Args:    []string{"test_video.py", "--video_root", "{frames}", "--mask_root", "{masks}", "--inpainted_root", "{stage1}", "--output_root", "{output}", "--device={device}", "--ckpt={weights}/zits"},
		WorkDir: "/opt/zits",
	}, WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandTool: %v", err)
	}

	var lines []string
	code, err := tool.Run(context.Background(), Invocation{
		FramesDir:  "/d/frames",
		MasksDir:   "/d/masks",
		Stage1Dir:  "/d/s1",
		OutputDir:  "/d/s2",
		Device:     "cuda",
		WeightsDir: "/w",
		Env:        []string{"PIPELINE_DEVICE=cuda"},
		OnOutput:   func(l string) { lines = append(lines, l) },
	})
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	want := []string{"test_video.py", "--video_root", "/d/frames", "--mask_root", "/d/masks", "--inpainted_root", "/d/s1", "--output_root", "/d/s2", "--device=cuda", "--ckpt=/w/zits"}
	if diff := cmp.Diff(want, exec.got.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	if exec.got.Dir != "/opt/zits" || exec.got.Binary != "python" {
		t.Fatalf("unexpected command %+v", exec.got)
	}
	if !slices.Contains(exec.got.Env, "PIPELINE_DEVICE=cuda") {
		t.Fatal("expected profile env to be passed through")
	}
	if diff := cmp.Diff([]string{"loading model", "done"}, lines); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestNewCommandToolRequiresCommand(t *testing.T) {
	if _, err := NewCommandTool(config.StageCommand{Name: "lama"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessExecutorReportsExitCodeAndOutput(t *testing.T) {
	script := writeScript(t, `echo "out $1"; echo "err line" >&2; exit 3`)
	tool, err := NewCommandTool(config.StageCommand{Command: script, Args: []string{"{device}"}})
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	code, err := tool.Run(context.Background(), Invocation{Device: "cpu", OnOutput: func(l string) { lines = append(lines, l) }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
	slices.Sort(lines)
	if diff := cmp.Diff([]string{"err line", "out cpu"}, lines); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessExecutorLaunchFailure(t *testing.T) {
	tool, err := NewCommandTool(config.StageCommand{Command: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatal(err)
	}
	code, err := tool.Run(context.Background(), Invocation{})
	if err == nil || code != -1 {
		t.Fatalf("expected launch failure, got %d %v", code, err)
	}
}

func TestProcessExecutorHonoursCancellation(t *testing.T) {
	script := writeScript(t, "sleep 5")
	tool, err := NewCommandTool(config.StageCommand{Command: script})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tool.Run(ctx, Invocation{})
	if !errors.Is(err, context.Canceled) && (err == nil || !strings.Contains(err.Error(), "context canceled")) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	script := writeScript(t, "exit 0")
	tool, _ := NewCommandTool(config.StageCommand{Name: "lama", Command: script, WorkDir: filepath.Dir(script)})
	h := tool.Check()
	if !h.Ready() || h.Path != script || h.WorkDir != filepath.Dir(script) {
		t.Fatalf("expected healthy tool, got %+v", h)
	}
	missing, _ := NewCommandTool(config.StageCommand{Name: "lama", Command: "definitely-not-installed-xyz"})
	if h := missing.Check(); h.Ready() {
		t.Fatal("expected unhealthy tool for missing binary")
	}
	badDir, _ := NewCommandTool(config.StageCommand{Name: "lama", Command: script, WorkDir: "/nonexistent/dir"})
	if h := badDir.Check(); h.Ready() {
		t.Fatal("expected unhealthy tool for missing work dir")
	}
}
