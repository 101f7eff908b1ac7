package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"subclean/internal/acquire"
	"subclean/internal/hardware"
	"subclean/internal/history"
	"subclean/internal/notifications"
	"subclean/internal/publish"
	"subclean/internal/runspec"
	"subclean/internal/services"
	"subclean/internal/services/inference"
	"subclean/internal/stage"
	"subclean/internal/stageexec"
)

func populate(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644)
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := populate(dir, name); err != nil {
		t.Fatal(err)
	}
}

type fakeProfiler struct{ profile hardware.Profile }

func (f fakeProfiler) Profile(context.Context) hardware.Profile { return f.profile }

type fakeAcquirer struct {
	frames int
	err    error
	calls  int
}

func (f *fakeAcquirer) Acquire(_ context.Context, spec runspec.Spec) (acquire.Result, error) {
	f.calls++
	res := acquire.Result{Strategy: acquire.StrategySynthesized, FramesDir: spec.FramesDir, MasksDir: spec.MasksDir}
	if f.err != nil {
		return res, f.err
	}
	for i := 1; i <= f.frames; i++ {
		if err := populate(spec.FramesDir, fmt.Sprintf("frame_%05d.png", i)); err != nil {
			return res, err
		}
		if err := populate(spec.MasksDir, fmt.Sprintf("mask_%05d.png", i)); err != nil {
			return res, err
		}
	}
	res.Frames, res.Masks = f.frames, f.frames
	return res, nil
}

// copyTool copies every file from one of its inputs into the output dir.
type copyTool struct {
	from  func(inference.Invocation) string
	calls int
}

func (c *copyTool) Run(_ context.Context, inv inference.Invocation) (int, error) {
	c.calls++
	if c.from == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(c.from(inv))
	if err != nil {
		return -1, err
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(c.from(inv), e.Name()))
		if err != nil {
			return -1, err
		}
		if err := os.WriteFile(filepath.Join(inv.OutputDir, e.Name()), data, 0o644); err != nil {
			return -1, err
		}
	}
	return 0, nil
}

type fakePublisher struct {
	frameDir string
	calls    int
	outcome  publish.Outcome
}

func (f *fakePublisher) Publish(_ context.Context, frameDir string, _ runspec.Spec) publish.Outcome {
	f.calls++
	f.frameDir = frameDir
	out := f.outcome
	out.SourceDir = frameDir
	return out
}

type fakeRecorder struct{ entries []history.Entry }

func (f *fakeRecorder) Record(_ context.Context, e history.Entry) (int64, error) {
	f.entries = append(f.entries, e)
	return int64(len(f.entries)), nil
}

type fakeNotifier struct{ events []notifications.Event }

func (f *fakeNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	f.events = append(f.events, event)
	return nil
}

type fakeCredentials struct{ err error }

func (f fakeCredentials) CheckCredentials(context.Context, ...string) error { return f.err }

type harness struct {
	spec      runspec.Spec
	acquirer  *fakeAcquirer
	stage1    *copyTool
	stage2    *copyTool
	publisher *fakePublisher
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	opts      Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		spec: runspec.Spec{
			RunID:      "run-test",
			FramesDir:  filepath.Join(root, "input_video"),
			MasksDir:   filepath.Join(root, "masks"),
			Stage1Dir:  filepath.Join(root, "lama_output"),
			Stage2Dir:  filepath.Join(root, "zits_output"),
			StagingDir: filepath.Join(root, "staging"),
			PublishDir: filepath.Join(root, "output"),
			LogDir:     filepath.Join(root, "logs"),
		},
		acquirer:  &fakeAcquirer{frames: 3},
		stage1:    &copyTool{from: func(inv inference.Invocation) string { return inv.FramesDir }},
		stage2:    &copyTool{from: func(inv inference.Invocation) string { return inv.Stage1Dir }},
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
		notifier:  &fakeNotifier{},
	}
	h.opts = Options{
		Profiler:      fakeProfiler{profile: hardware.Profile{Compute: hardware.ComputeCPU, Source: "forced"}},
		Acquirer:      h.acquirer,
		Publisher:     h.publisher,
		History:       h.recorder,
		Notifier:      h.notifier,
		WriteManifest: true,
		Now:           func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	return h
}

func (h *harness) run(t *testing.T, requireOutput bool) (Report, error) {
	t.Helper()
	h.opts.Stages = stageexec.NewRunner(stageexec.Options{
		Tools:         map[stage.Name]inference.Tool{stage.Stage1: h.stage1, stage.Stage2: h.stage2},
		RequireOutput: requireOutput,
	})
	orch, err := New(h.opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch.Run(context.Background(), h.spec)
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t)
	report, err := h.run(t, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Classification != Success || report.ExitCode != ExitOK {
		t.Fatalf("expected success, got %s/%d", report.Classification, report.ExitCode)
	}
	wantStates := []State{StateInit, StateProfiled, StateAcquired, StateStage1Done, StateStage2Done, StatePublished, StateTerminal}
	if diff := cmp.Diff(wantStates, report.States); diff != "" {
		t.Fatalf("state trace mismatch (-want +got):\n%s", diff)
	}
	if h.publisher.frameDir != h.spec.Stage2Dir {
		t.Fatalf("expected stage-2 output published, got %q", h.publisher.frameDir)
	}
	if report.Stage2.Outputs != 3 {
		t.Fatalf("expected 3 stage-2 outputs, got %d", report.Stage2.Outputs)
	}
	if len(h.recorder.entries) != 1 || h.recorder.entries[0].Classification != "success" {
		t.Fatalf("expected history entry, got %+v", h.recorder.entries)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventRunCompleted}, h.notifier.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(h.spec.ManifestPath())
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var manifest map[string]any
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest not yaml: %v", err)
	}
	if manifest["classification"] != "success" || manifest["run_id"] != "run-test" {
		t.Fatalf("unexpected manifest %v", manifest)
	}
}

func TestRunStageOneEmptyOutputSkipsStageTwo(t *testing.T) {
	h := newHarness(t)
	h.stage1.from = nil
	report, err := h.run(t, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stage1.Status != stage.StatusFailed {
		t.Fatalf("expected stage 1 failed on empty output, got %+v", report.Stage1)
	}
	if report.Stage2.Status != stage.StatusSkipped || h.stage2.calls != 0 {
		t.Fatalf("expected stage 2 skipped without running, got %+v calls=%d", report.Stage2, h.stage2.calls)
	}
	if report.Classification != Partial || report.ExitCode != ExitOK {
		t.Fatalf("expected partial/0, got %s/%d", report.Classification, report.ExitCode)
	}
	if h.publisher.calls != 1 || h.publisher.frameDir != "" {
		t.Fatalf("publisher must run with no frames, got calls=%d dir=%q", h.publisher.calls, h.publisher.frameDir)
	}
}

func TestRunLenientEmptyOutputStillSkipsStageTwo(t *testing.T) {
	h := newHarness(t)
	h.stage1.from = nil
	report, err := h.run(t, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stage1.Status != stage.StatusCompleted || report.Stage1.Warning == "" {
		t.Fatalf("expected completed with warning, got %+v", report.Stage1)
	}
	if report.Stage2.Status != stage.StatusSkipped {
		t.Fatalf("expected stage 2 skipped, got %+v", report.Stage2)
	}
	if report.Classification != Partial {
		t.Fatalf("expected partial, got %s", report.Classification)
	}
}

func TestRunStageTwoFailurePublishesStageOne(t *testing.T) {
	h := newHarness(t)
	h.stage2.from = func(inference.Invocation) string { return "/nonexistent" }
	report, err := h.run(t, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stage2.Status != stage.StatusFailed {
		t.Fatalf("expected stage 2 failed, got %+v", report.Stage2)
	}
	if h.publisher.frameDir != h.spec.Stage1Dir {
		t.Fatalf("expected stage-1 output published, got %q", h.publisher.frameDir)
	}
	if report.Classification != Partial {
		t.Fatalf("expected partial, got %s", report.Classification)
	}
}

func TestRunAcquisitionFailure(t *testing.T) {
	h := newHarness(t)
	h.acquirer.err = services.Wrap(services.ErrDataUnavailable, "acquire", "pre-staged", "frames dir empty", nil)
	report, err := h.run(t, true)
	if err != nil {
		t.Fatalf("missing input must not be returned as an error: %v", err)
	}
	if report.Classification != Failed || report.ExitCode != ExitFailed {
		t.Fatalf("expected failed/1, got %s/%d", report.Classification, report.ExitCode)
	}
	if h.stage1.calls != 0 || h.publisher.calls != 0 {
		t.Fatal("no stage or publish may run after failed acquisition")
	}
	if report.Stage1 != nil || report.Stage2 != nil {
		t.Fatalf("unexpected stage outcomes %+v %+v", report.Stage1, report.Stage2)
	}
	if len(h.recorder.entries) != 1 || h.recorder.entries[0].ExitCode != ExitFailed {
		t.Fatalf("expected failed run recorded, got %+v", h.recorder.entries)
	}
	if !strings.Contains(report.Error, "data unavailable") {
		t.Fatalf("expected error recorded on report, got %q", report.Error)
	}
}

func TestRunResetsStaleOutputs(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.spec.Stage1Dir, "stale.png")
	writeFile(t, h.spec.Stage2Dir, "stale.png")
	h.stage1.from = nil

	report, err := h.run(t, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stage2.Status != stage.StatusSkipped {
		t.Fatalf("stale stage-1 output must not satisfy stage 2, got %+v", report.Stage2)
	}
	if _, err := os.Stat(filepath.Join(h.spec.Stage2Dir, "stale.png")); !os.IsNotExist(err) {
		t.Fatal("stale stage-2 output should have been removed")
	}
}

func TestRunCredentialFailureIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	h.spec.DestinationURL = "s3://bucket/out"
	h.opts.Credentials = fakeCredentials{err: errors.New("no credentials in chain")}

	report, err := h.run(t, true)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if report.ExitCode != ExitInternal || report.Classification != Failed {
		t.Fatalf("expected failed/2, got %s/%d", report.Classification, report.ExitCode)
	}
	if h.acquirer.calls != 0 {
		t.Fatal("acquisition must not start after a configuration error")
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventError}, h.notifier.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRefusesConcurrentWorkspace(t *testing.T) {
	h := newHarness(t)
	if err := os.MkdirAll(h.spec.StagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(h.spec.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock: %v %v", ok, err)
	}
	defer held.Unlock()

	report, err := h.run(t, true)
	if err == nil || report.ExitCode != ExitInternal {
		t.Fatalf("expected lock failure, got %v exit=%d", err, report.ExitCode)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if h.acquirer.calls != 0 {
		t.Fatal("no work may start without the workspace lock")
	}
	if len(h.recorder.entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(h.recorder.entries))
	}
	entry := h.recorder.entries[0]
	if entry.ExitCode != ExitInternal || entry.Classification != string(Failed) {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventError}, h.notifier.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(h.spec.ManifestPath()); !os.IsNotExist(err) {
		t.Fatal("a run that never held the lock must not write a manifest")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}
