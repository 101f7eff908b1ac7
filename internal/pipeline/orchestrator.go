package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"subclean/internal/acquire"
	"subclean/internal/fileutil"
	"subclean/internal/hardware"
	"subclean/internal/history"
	"subclean/internal/logging"
	"subclean/internal/notifications"
	"subclean/internal/preflight"
	"subclean/internal/publish"
	"subclean/internal/runspec"
	"subclean/internal/services"
	"subclean/internal/stage"
	"subclean/internal/stageexec"
)

// Profiler reports the device profile for the run.
type Profiler interface {
	Profile(ctx context.Context) hardware.Profile
}

// Acquirer materializes frames and masks.
type Acquirer interface {
	Acquire(ctx context.Context, spec runspec.Spec) (acquire.Result, error)
}

// StageRunner runs one inference stage.
type StageRunner interface {
	Run(ctx context.Context, req stageexec.Request) stage.Outcome
}

// Publisher reassembles and uploads the selected frame set.
type Publisher interface {
	Publish(ctx context.Context, frameDir string, spec runspec.Spec) publish.Outcome
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (int64, error)
}

// Options wire the orchestrator's collaborators. Profiler, Acquirer, Stages,
// and Publisher are required; the rest are optional.
type Options struct {
	Profiler    Profiler
	Acquirer    Acquirer
	Stages      StageRunner
	Publisher   Publisher
	History     Recorder
	Notifier    notifications.Service
	Credentials preflight.CredentialChecker
	// WriteManifest writes report.yaml into the publish dir.
	WriteManifest bool
	Logger        *slog.Logger
	Now           func() time.Time
}

// Orchestrator drives one run through the state machine.
type Orchestrator struct {
	opts    Options
	logger  *slog.Logger
	closers []io.Closer
}

// New constructs an Orchestrator from explicit collaborators.
func New(opts Options) (*Orchestrator, error) {
	if opts.Profiler == nil || opts.Acquirer == nil || opts.Stages == nil || opts.Publisher == nil {
		return nil, errors.New("pipeline requires profiler, acquirer, stage runner, and publisher")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.Noop()
	}
	return &Orchestrator{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "pipeline")}, nil
}

// Close releases resources opened by NewFromConfig.
func (o *Orchestrator) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

type run struct {
	report  *Report
	logger  *slog.Logger
	aborted bool
}

func (r *run) enter(state State) {
	from := StateInit
	if n := len(r.report.States); n > 0 {
		from = r.report.States[n-1]
	}
	r.report.States = append(r.report.States, state)
	r.logger.Debug("state transition",
		logging.String(logging.FieldEventType, "state_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(state)),
	)
}

// Run executes the pipeline for spec. The returned error is non-nil only for
// configuration or internal failures (exit 2); stage and publish problems are
// recorded on the report, and missing input classifies the run as failed.
func (o *Orchestrator) Run(ctx context.Context, spec runspec.Spec) (Report, error) {
	ctx = services.WithRunID(ctx, spec.RunID)
	logger := logging.WithContext(ctx, o.logger)
	report := &Report{
		RunID:     spec.RunID,
		StartedAt: o.opts.Now().UTC(),
		States:    []State{StateInit},
		Context:   spec,
	}
	r := &run{report: report, logger: logger}

	lock, err := acquireLock(spec)
	if err != nil {
		// The workspace belongs to another run; abort only writes the ledger
		// and the notification, never the staging or publish directories.
		return o.abort(ctx, r, spec, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Debug("release workspace lock failed", logging.Error(err))
		}
	}()

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("frames_dir", spec.FramesDir),
		logging.String("source_url", spec.SourceURL),
		logging.String("destination_url", spec.DestinationURL),
		logging.Bool("use_synthetic", spec.UseSynthetic),
	)

	if err := o.prepare(ctx, spec); err != nil {
		return o.abort(ctx, r, spec, err)
	}

	report.Profile = o.opts.Profiler.Profile(ctx)
	ctx = services.WithDevice(ctx, report.Profile.Compute.DeviceFlag())
	logger = logging.WithContext(ctx, o.logger)
	r.logger = logger
	r.enter(StateProfiled)

	acq, err := o.opts.Acquirer.Acquire(ctx, spec)
	if err != nil {
		if services.IsFatal(err) || ctx.Err() != nil {
			return o.abort(ctx, r, spec, err)
		}
		report.Acquisition = &acq
		report.Error = err.Error()
		logging.ErrorWithContext(logger, "acquisition failed", "acquisition_failed",
			logging.String("strategy", string(acq.Strategy)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the source locator or the frames and masks directories"),
		)
		o.finish(ctx, r, spec, false)
		return *report, nil
	}
	report.Acquisition = &acq
	r.enter(StateAcquired)

	s1 := o.opts.Stages.Run(ctx, stageexec.Request{
		Stage:     stage.Stage1,
		Inputs:    []string{acq.FramesDir, acq.MasksDir},
		OutputDir: spec.Stage1Dir,
		Profile:   report.Profile,
	})
	report.Stage1 = &s1
	r.enter(StateStage1Done)
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, spec, err)
	}

	s2 := o.opts.Stages.Run(ctx, stageexec.Request{
		Stage:     stage.Stage2,
		Inputs:    []string{acq.FramesDir, acq.MasksDir, spec.Stage1Dir},
		OutputDir: spec.Stage2Dir,
		Profile:   report.Profile,
	})
	report.Stage2 = &s2
	r.enter(StateStage2Done)
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, spec, err)
	}

	frameDir, source := SelectFrames(s1, s2)
	logger.Info("publish source selected",
		logging.Args(append(logging.DecisionAttrs("publish_source", source, "most advanced non-empty frame set"),
			logging.String(logging.FieldEventType, "publish_select"),
			logging.String("frame_dir", frameDir),
		)...)...,
	)
	pub := o.opts.Publisher.Publish(ctx, frameDir, spec)
	report.Publish = &pub
	r.enter(StatePublished)

	o.finish(ctx, r, spec, true)
	return *report, nil
}

// SelectFrames picks the most advanced non-empty frame set: stage-2 output,
// else stage-1 output, else none. The second value names the choice.
func SelectFrames(stage1, stage2 stage.Outcome) (string, string) {
	switch {
	case stage2.Completed() && stage.Ready(stage2.OutputDir):
		return stage2.OutputDir, string(stage.Stage2)
	case stage1.Completed() && stage.Ready(stage1.OutputDir):
		return stage1.OutputDir, string(stage.Stage1)
	default:
		return "", "none"
	}
}

func acquireLock(spec runspec.Spec) (*flock.Flock, error) {
	if err := os.MkdirAll(spec.StagingDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "lock", "create staging dir", err)
	}
	lock := flock.New(spec.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "lock", spec.LockPath(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "lock",
			fmt.Sprintf("another run is using %s", spec.StagingDir), nil)
	}
	return lock, nil
}

// prepare clears outputs left by an earlier run so they cannot satisfy a
// precondition or be published, then verifies remote credentials.
func (o *Orchestrator) prepare(ctx context.Context, spec runspec.Spec) error {
	for _, dir := range []string{spec.Stage1Dir, spec.Stage2Dir} {
		if err := fileutil.ResetDir(dir); err != nil {
			return services.Wrap(services.ErrConfiguration, "pipeline", "reset outputs", dir, err)
		}
	}
	if err := os.RemoveAll(spec.AssemblyDir()); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "reset outputs", spec.AssemblyDir(), err)
	}
	if err := os.Remove(spec.ContainerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrConfiguration, "pipeline", "reset outputs", spec.ContainerPath(), err)
	}

	if o.opts.Credentials != nil {
		var locators []string
		if spec.SourceURL != "" {
			locators = append(locators, spec.SourceURL)
		}
		if spec.DestinationURL != "" {
			locators = append(locators, spec.DestinationURL)
		}
		if err := o.opts.Credentials.CheckCredentials(ctx, locators...); err != nil {
			if !services.IsFatal(err) {
				err = services.Wrap(services.ErrConfiguration, "pipeline", "credentials", "", err)
			}
			return err
		}
	}
	return nil
}

// abort ends the run with an internal or configuration error.
func (o *Orchestrator) abort(ctx context.Context, r *run, spec runspec.Spec, err error) (Report, error) {
	r.report.Error = err.Error()
	r.aborted = true
	logging.ErrorWithContext(r.logger, "run aborted", "run_aborted",
		logging.Error(err),
		logging.Alert("run_aborted"),
		logging.String(logging.FieldErrorHint, "fix the configuration and rerun"),
	)
	o.finish(ctx, r, spec, false)
	if notifyErr := o.opts.Notifier.Publish(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{
		"error":   err,
		"context": "run " + spec.RunID,
	}); notifyErr != nil {
		r.logger.Debug("error notification failed", logging.Error(notifyErr))
	}
	return *r.report, err
}

// finish classifies the run and writes the manifest, ledger row, and
// notification. All three are best-effort.
func (o *Orchestrator) finish(ctx context.Context, r *run, spec runspec.Spec, acquired bool) {
	ctx = context.WithoutCancel(ctx)
	report := r.report
	report.Classification = Classify(acquired, report.Outcomes()...)
	report.ExitCode = report.Classification.ExitCode()
	if r.aborted {
		report.Classification = Failed
		report.ExitCode = ExitInternal
	}
	report.FinishedAt = o.opts.Now().UTC()
	r.enter(StateTerminal)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("classification", string(report.Classification)),
		logging.Int("exit_code", report.ExitCode),
		logging.Duration("duration", report.Duration()),
		logging.Int("warnings", report.Warnings()),
	}
	for _, outcome := range report.Outcomes() {
		attrs = append(attrs, logging.String(string(outcome.Stage)+"_status", string(outcome.Status)))
	}
	if out := report.Output(); out != "" {
		attrs = append(attrs, logging.String("output", out))
	}
	r.logger.Info("run finished", logging.Args(attrs...)...)

	if o.opts.WriteManifest && report.Acquisition != nil {
		if err := report.WriteManifest(spec.ManifestPath()); err != nil {
			logging.WarnWithContext(r.logger, "manifest not written", "manifest_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run report only available in logs"),
			)
		}
	}
	if o.opts.History != nil {
		if _, err := o.opts.History.Record(ctx, report.HistoryEntry()); err != nil {
			logging.WarnWithContext(r.logger, "run not recorded in history", "history_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run missing from subclean history"),
			)
		}
	}
	if r.aborted {
		return
	}
	if err := o.opts.Notifier.Publish(ctx, notifications.EventRunCompleted, report.notificationPayload()); err != nil {
		r.logger.Debug("run notification failed", logging.Error(err))
	}
}
