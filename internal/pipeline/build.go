package pipeline

import (
	"log/slog"
	"time"

	"subclean/internal/acquire"
	"subclean/internal/config"
	"subclean/internal/hardware"
	"subclean/internal/history"
	"subclean/internal/logging"
	"subclean/internal/media/frames"
	"subclean/internal/media/mask"
	"subclean/internal/notifications"
	"subclean/internal/publish"
	"subclean/internal/services"
	"subclean/internal/services/inference"
	"subclean/internal/stage"
	"subclean/internal/stageexec"
	"subclean/internal/storage"
	"subclean/internal/synthetic"
)

// NewStore builds the storage router described by cfg.
func NewStore(cfg *config.Config, logger *slog.Logger) *storage.Router {
	return storage.NewRouter(storage.Options{
		S3: storage.S3Options{
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		},
		Retry: storage.RetryPolicy{
			Attempts: cfg.Storage.RetryAttempts,
			Initial:  time.Duration(cfg.Storage.RetryInitialMillis) * time.Millisecond,
			Max:      time.Duration(cfg.Storage.RetryMaxMillis) * time.Millisecond,
		},
		UploadConcurrency: cfg.Storage.UploadConcurrency,
		Logger:            logger,
	})
}

// NewProfiler builds the hardware profiler described by cfg.
func NewProfiler(cfg *config.Config, logger *slog.Logger) *hardware.Profiler {
	return hardware.NewProfiler(hardware.Options{
		Mode:       hardware.Mode(cfg.Compute.Mode),
		WeightsDir: cfg.Compute.WeightsDir,
		NvidiaSMI:  cfg.NvidiaSMIBinary(),
		Logger:     logger,
	})
}

// NewAcquirer builds the data acquirer described by cfg.
func NewAcquirer(cfg *config.Config, store storage.Store, logger *slog.Logger) *acquire.Acquirer {
	return acquire.New(acquire.Options{
		Store:   store,
		FFmpeg:  cfg.FFmpegBinary(),
		FFprobe: cfg.FFprobeBinary(),
		Extract: frames.ExtractOptions{
			Width:  cfg.Source.FrameWidth,
			Height: cfg.Source.FrameHeight,
			FPS:    cfg.Source.ExtractFPS,
		},
		Synthetic: synthetic.Options{
			Count:     cfg.Source.SyntheticFrames,
			Width:     cfg.Source.FrameWidth,
			Height:    cfg.Source.FrameHeight,
			BandRatio: cfg.Source.MaskBandRatio,
		},
		Masks:  mask.Generator{BandRatio: cfg.Source.MaskBandRatio},
		Logger: logger,
	})
}

// NewStageTools builds the command-backed tools for both stages.
func NewStageTools(cfg *config.Config) (map[stage.Name]*inference.CommandTool, error) {
	tools := make(map[stage.Name]*inference.CommandTool, 2)
	for name, cmd := range map[stage.Name]config.StageCommand{
		stage.Stage1: cfg.Stages.Stage1,
		stage.Stage2: cfg.Stages.Stage2,
	} {
		tool, err := inference.NewCommandTool(cmd)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "stage tool", string(name), err)
		}
		tools[name] = tool
	}
	return tools, nil
}

// NewFromConfig wires every collaborator from cfg. Logs for the run are
// teed into a per-run JSON file in the log directory; Close releases it
// together with the history database.
func NewFromConfig(cfg *config.Config, runID string, base *slog.Logger) (*Orchestrator, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "ensure directories", "", err)
	}
	if base == nil {
		base = logging.NewNop()
	}

	var closers []closerFunc
	logger := base
	if handler, closer, err := logging.OpenRunLog(cfg.Paths.LogDir, runID); err != nil {
		logging.WarnWithContext(base, "per-run log unavailable", "run_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run logs only reach the main log"),
		)
	} else {
		logger = logging.TeeLogger(base, handler)
		closers = append(closers, closer.Close)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, time.Now())

	store := NewStore(cfg, logger)
	tools, err := NewStageTools(cfg)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	runner := stageexec.NewRunner(stageexec.Options{
		Tools: map[stage.Name]inference.Tool{
			stage.Stage1: tools[stage.Stage1],
			stage.Stage2: tools[stage.Stage2],
		},
		RequireOutput: cfg.Stages.RequireOutput,
		Timeout:       time.Duration(cfg.Stages.TimeoutSeconds) * time.Second,
		WeightsDir:    cfg.Compute.WeightsDir,
		Logger:        logger,
	})
	publisher := publish.New(publish.Options{
		Store:   store,
		FFmpeg:  cfg.FFmpegBinary(),
		FFprobe: cfg.FFprobeBinary(),
		Assemble: frames.AssembleOptions{
			FPS:         cfg.Publish.FPS,
			Codec:       cfg.Publish.Codec,
			CRF:         cfg.Publish.CRF,
			PixelFormat: cfg.Publish.PixelFormat,
		},
		Logger: logger,
	})

	opts := Options{
		Profiler:      NewProfiler(cfg, logger),
		Acquirer:      NewAcquirer(cfg, store, logger),
		Stages:        runner,
		Publisher:     publisher,
		Notifier:      notifications.NewService(cfg),
		Credentials:   store,
		WriteManifest: cfg.Publish.WriteManifest,
		Logger:        logger,
	}
	if ledger, err := history.Open(cfg); err != nil {
		logging.WarnWithContext(logger, "history ledger unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in subclean history"),
		)
	} else {
		opts.History = ledger
		closers = append(closers, ledger.Close)
	}

	orch, err := New(opts)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	for _, c := range closers {
		orch.closers = append(orch.closers, c)
	}
	return orch, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []closerFunc) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
}
