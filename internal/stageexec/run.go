package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"subclean/internal/hardware"
	"subclean/internal/logging"
	"subclean/internal/services"
	"subclean/internal/services/inference"
	"subclean/internal/stage"
)

// Options controls stage execution behavior.
type Options struct {
	Tools map[stage.Name]inference.Tool
	// RequireOutput fails a stage that exits 0 but writes nothing.
	RequireOutput bool
	// Timeout bounds each stage; zero disables the deadline.
	Timeout    time.Duration
	WeightsDir string
	Logger     *slog.Logger
}

// Request describes one stage invocation.
type Request struct {
	Stage     stage.Name
	Inputs    []string
	OutputDir string
	Profile   hardware.Profile
}

// Runner executes inference stages behind the precondition gate.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner constructs a stage runner.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "stageexec")}
}

// Run gates the stage on its inputs, invokes the tool synchronously, and
// classifies the result. It never returns an error; failures are recorded on
// the outcome.
func (r *Runner) Run(ctx context.Context, req Request) stage.Outcome {
	stageCtx := services.WithStage(ctx, string(req.Stage))
	logger := logging.WithContext(stageCtx, r.logger)

	if dir, missing := stage.FirstUnready(req.Inputs...); missing {
		reason := services.Wrap(services.ErrStageSkipped, "stageexec", "precondition",
			fmt.Sprintf("input %s is missing or empty", dir), nil).Error()
		logger.Info("stage skipped",
			logging.Args(append(logging.DecisionAttrs("stage_gate", "skip", reason),
				logging.String(logging.FieldEventType, "stage_skipped"),
			)...)...,
		)
		return stage.Skipped(req.Stage, req.OutputDir, reason)
	}

	tool := r.opts.Tools[req.Stage]
	if tool == nil {
		return r.fail(logger, req, -1, 0, services.Wrap(services.ErrConfiguration, "stageexec", "lookup tool",
			fmt.Sprintf("no tool configured for %s", req.Stage), nil))
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return r.fail(logger, req, -1, 0, services.Wrap(services.ErrExternalTool, "stageexec", "prepare output", req.OutputDir, err))
	}

	runCtx := stageCtx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(stageCtx, r.opts.Timeout)
		defer cancel()
	}

	inv := invocationFor(req, r.opts.WeightsDir)
	inv.OnOutput = func(line string) {
		line = strings.TrimSpace(line)
		if line != "" {
			logger.Debug(line, logging.String(logging.FieldEventType, "tool_output"))
		}
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("device", inv.Device),
		logging.String("output_dir", req.OutputDir),
	)
	started := time.Now()
	code, err := tool.Run(runCtx, inv)
	elapsed := time.Since(started)

	switch {
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return r.fail(logger, req, -1, elapsed, services.Wrap(services.ErrTimeout, "stageexec", "run",
			fmt.Sprintf("stage exceeded %s", r.opts.Timeout), err))
	case err != nil:
		return r.fail(logger, req, -1, elapsed, services.Wrap(services.ErrExternalTool, "stageexec", "launch", string(req.Stage), err))
	case code != 0:
		return r.fail(logger, req, code, elapsed, services.Wrap(services.ErrExternalTool, "stageexec", "run",
			fmt.Sprintf("exit status %d", code), nil))
	}

	outputs := countEntries(req.OutputDir)
	outcome := stage.Outcome{
		Stage:     req.Stage,
		Status:    stage.StatusCompleted,
		OutputDir: req.OutputDir,
		Outputs:   outputs,
		Duration:  elapsed,
	}
	if outputs == 0 {
		if r.opts.RequireOutput {
			return r.fail(logger, req, 0, elapsed, services.Wrap(services.ErrExternalTool, "stageexec", "verify output",
				"exited 0 but wrote no output", nil))
		}
		outcome.Warning = "exited 0 but wrote no output"
		logging.WarnWithContext(logger, "stage produced no output", "stage_empty_output",
			logging.String(logging.FieldErrorHint, "inspect the stage tool log output"),
			logging.String(logging.FieldImpact, "next stage will be skipped"),
		)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("outputs", outputs),
		logging.Duration("duration", elapsed),
	)
	return outcome
}

func (r *Runner) fail(logger *slog.Logger, req Request, code int, elapsed time.Duration, err error) stage.Outcome {
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Int("exit_code", code),
		logging.Error(err),
	)
	return stage.Outcome{
		Stage:     req.Stage,
		Status:    stage.StatusFailed,
		OutputDir: req.OutputDir,
		ExitCode:  code,
		Reason:    err.Error(),
		Outputs:   countEntries(req.OutputDir),
		Duration:  elapsed,
	}
}

func invocationFor(req Request, weightsDir string) inference.Invocation {
	inv := inference.Invocation{
		Stage:      string(req.Stage),
		OutputDir:  req.OutputDir,
		Device:     req.Profile.Compute.DeviceFlag(),
		WeightsDir: weightsDir,
		Env:        req.Profile.Env(),
	}
	if len(req.Inputs) > 0 {
		inv.FramesDir = req.Inputs[0]
	}
	if len(req.Inputs) > 1 {
		inv.MasksDir = req.Inputs[1]
	}
	if len(req.Inputs) > 2 {
		inv.Stage1Dir = req.Inputs[2]
	}
	return inv
}

func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}
