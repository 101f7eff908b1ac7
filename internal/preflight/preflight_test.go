package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subclean/internal/config"
	"subclean/internal/hardware"
	"subclean/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckNtfy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	if result := CheckNtfy(context.Background(), ok.URL+"/subclean"); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()
	if result := CheckNtfy(context.Background(), forbidden.URL); result.Passed {
		t.Fatal("expected failure for protected topic")
	}

	if result := CheckNtfy(context.Background(), ""); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("expected disabled pass, got %+v", result)
	}
}

type stubChecker struct {
	err      error
	locators []string
}

func (s *stubChecker) CheckCredentials(_ context.Context, locators ...string) error {
	s.locators = locators
	return s.err
}

func TestCheckStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithRemoteSource("s3://in/video.mp4"),
		testsupport.WithDestination("s3://out/job"),
	)

	checker := &stubChecker{}
	if result := CheckStorage(context.Background(), checker, cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if len(checker.locators) != 2 {
		t.Fatalf("expected both locators checked, got %v", checker.locators)
	}

	failing := &stubChecker{err: errors.New("no credentials resolved")}
	result := CheckStorage(context.Background(), failing, cfg)
	if result.Passed || !strings.Contains(result.Detail, "no credentials") {
		t.Fatalf("expected credential failure, got %+v", result)
	}

	local := testsupport.NewConfig(t)
	if result := CheckStorage(context.Background(), nil, local); !result.Passed {
		t.Fatalf("expected pass without remote locators, got %+v", result)
	}
}

func TestCheckCompute(t *testing.T) {
	profiler := hardware.NewProfiler(hardware.Options{Mode: hardware.ModeCPU})
	result := CheckCompute(context.Background(), profiler)
	if !result.Passed || !strings.HasPrefix(result.Detail, "cpu") {
		t.Fatalf("unexpected compute result %+v", result)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithStageScript("stage1", "exit 0"),
	)
	cfg.Stages.Stage2.Command = "definitely-missing-stage2"

	statuses := CheckSystemDeps(cfg)
	byName := map[string]bool{}
	for _, s := range statuses {
		byName[s.Name] = s.Available()
	}
	if !byName["FFmpeg"] || !byName["FFprobe"] {
		t.Fatalf("expected stubbed ffmpeg/ffprobe available: %+v", statuses)
	}
	if !byName["Stage 1 (stage1)"] {
		t.Fatalf("expected stage 1 script available: %+v", statuses)
	}
	if byName["Stage 2 (zits)"] {
		t.Fatalf("expected stage 2 missing: %+v", statuses)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_PreStagedConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, nil)
	// staging, publish, log, frames, masks, storage
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ReportsMissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.Mode = config.SourceSynthetic

	failed := Failed(RunAll(context.Background(), cfg, nil))
	if len(failed) != 3 {
		t.Fatalf("expected staging/publish/log failures, got %+v", failed)
	}
}
