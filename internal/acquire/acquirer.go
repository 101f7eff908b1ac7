package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"subclean/internal/fileutil"
	"subclean/internal/logging"
	"subclean/internal/media/ffprobe"
	"subclean/internal/media/frames"
	"subclean/internal/media/mask"
	"subclean/internal/runspec"
	"subclean/internal/services"
	"subclean/internal/stage"
	"subclean/internal/storage"
	"subclean/internal/synthetic"
)

// Options configure an Acquirer.
type Options struct {
	Store     storage.Store
	FFmpeg    string
	FFprobe   string
	Extract   frames.ExtractOptions
	Synthetic synthetic.Options
	Masks     mask.Generator
	Logger    *slog.Logger
}

// Acquirer runs the selected acquisition strategy.
type Acquirer struct {
	opts   Options
	logger *slog.Logger
}

// New constructs an Acquirer.
func New(opts Options) *Acquirer {
	return &Acquirer{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "acquire")}
}

// Acquire resolves the strategy for spec and runs it.
func (a *Acquirer) Acquire(ctx context.Context, spec runspec.Spec) (Result, error) {
	strategy := Resolve(spec)
	logger := logging.WithContext(ctx, a.logger)
	reason := "no source locator and synthetic data disabled"
	switch strategy {
	case StrategyTransferred:
		reason = "source locator set"
	case StrategySynthesized:
		reason = "synthetic data requested"
	}
	logger.Info("acquisition strategy selected",
		logging.Args(append(logging.DecisionAttrs("acquisition_strategy", string(strategy), reason),
			logging.String(logging.FieldEventType, "acquisition_start"),
		)...)...,
	)

	var (
		res Result
		err error
	)
	switch strategy {
	case StrategyTransferred:
		res, err = a.transfer(ctx, spec)
	case StrategySynthesized:
		res, err = a.synthesize(spec)
	default:
		res, err = a.preStaged(spec)
	}
	if err != nil {
		return Result{Strategy: strategy, FramesDir: spec.FramesDir, MasksDir: spec.MasksDir, Source: spec.SourceURL}, err
	}

	logger.Info("acquisition complete",
		logging.String(logging.FieldEventType, "acquisition_complete"),
		logging.String("strategy", string(res.Strategy)),
		logging.Int("frames", res.Frames),
		logging.Int("masks", res.Masks),
		logging.Bool("masks_derived", res.MasksDerived),
	)
	return res, nil
}

func (a *Acquirer) transfer(ctx context.Context, spec runspec.Spec) (Result, error) {
	res := Result{Strategy: StrategyTransferred, FramesDir: spec.FramesDir, MasksDir: spec.MasksDir, Source: spec.SourceURL}
	if a.opts.Store == nil {
		return res, unavailable("download", "no storage backend configured", nil)
	}
	loc, err := storage.ParseLocator(spec.SourceURL)
	if err != nil {
		return res, unavailable("download", spec.SourceURL, err)
	}
	name := loc.Base()
	if name == "" || name == "." || name == "/" {
		return res, unavailable("download", "source locator names no object", nil)
	}
	local := filepath.Join(spec.SourceDir(), name)
	if err := a.opts.Store.Download(ctx, spec.SourceURL, local); err != nil {
		return res, unavailable("download", spec.SourceURL, err)
	}

	if probe, err := ffprobe.Inspect(ctx, a.opts.FFprobe, local, false); err == nil {
		a.logger.Debug("source probed",
			logging.Float64("fps", probe.FrameRate()),
			logging.Float64("duration_seconds", probe.DurationSeconds()),
			logging.Int("video_streams", probe.VideoStreamCount()),
		)
	} else {
		a.logger.Debug("source probe failed", logging.Error(err))
	}

	if err := resetDirs(spec.FramesDir, spec.MasksDir); err != nil {
		return res, unavailable("extract", "reset input dirs", err)
	}
	count, err := frames.Extract(ctx, a.opts.FFmpeg, local, spec.FramesDir, a.opts.Extract)
	if err != nil {
		return res, unavailable("extract", filepath.Base(local), err)
	}
	masks, err := a.opts.Masks.DeriveAll(spec.FramesDir, spec.MasksDir)
	if err != nil {
		return res, unavailable("derive masks", spec.MasksDir, err)
	}
	res.Frames = count
	res.Masks = masks
	res.MasksDerived = true
	return res, nil
}

func (a *Acquirer) synthesize(spec runspec.Spec) (Result, error) {
	res := Result{Strategy: StrategySynthesized, FramesDir: spec.FramesDir, MasksDir: spec.MasksDir}
	if err := resetDirs(spec.FramesDir, spec.MasksDir); err != nil {
		return res, unavailable("synthesize", "reset input dirs", err)
	}
	out, err := synthetic.Generate(spec.FramesDir, spec.MasksDir, a.opts.Synthetic)
	if err != nil {
		return res, unavailable("synthesize", "", err)
	}
	res.Frames = len(out.Frames)
	res.Masks = len(out.Masks)
	res.MasksDerived = true
	return res, nil
}

func (a *Acquirer) preStaged(spec runspec.Spec) (Result, error) {
	res := Result{Strategy: StrategyPreStaged, FramesDir: spec.FramesDir, MasksDir: spec.MasksDir}
	if !stage.Ready(spec.FramesDir) {
		return res, unavailable("validate", fmt.Sprintf("frames dir %s is missing or empty", spec.FramesDir), nil)
	}
	if !stage.Ready(spec.MasksDir) {
		count, err := a.opts.Masks.DeriveAll(spec.FramesDir, spec.MasksDir)
		if err != nil {
			return res, unavailable("derive masks", spec.MasksDir, err)
		}
		logging.WarnWithContext(a.logger, "pre-staged masks missing; derived from frames", "masks_derived",
			logging.String("masks_dir", spec.MasksDir),
			logging.Int("masks", count),
			logging.String(logging.FieldImpact, "subtitle band masks used instead of supplied masks"),
			logging.String(logging.FieldErrorHint, "place masks in masks_dir to use custom regions"),
		)
		res.MasksDerived = true
	}
	res.Frames = frames.Count(spec.FramesDir)
	res.Masks = frames.Count(spec.MasksDir)
	if res.Frames == 0 {
		return res, unavailable("validate", fmt.Sprintf("frames dir %s holds no images", spec.FramesDir), nil)
	}
	if res.Masks != res.Frames {
		logging.WarnWithContext(a.logger, "frame and mask counts differ", "mask_count_mismatch",
			logging.Int("frames", res.Frames),
			logging.Int("masks", res.Masks),
			logging.String(logging.FieldImpact, "stage tools may reject or skip unmatched frames"),
		)
	}
	return res, nil
}

func resetDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := fileutil.ResetDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func unavailable(operation, message string, err error) error {
	return services.Wrap(services.ErrDataUnavailable, "acquire", operation, message, err)
}
