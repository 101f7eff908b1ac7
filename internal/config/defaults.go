package config

const (
	defaultDataDir           = "~/.local/share/subclean"
	defaultFramesSubdir      = "input_video"
	defaultMasksSubdir       = "masks"
	defaultStage1Subdir      = "lama_output"
	defaultStage2Subdir      = "zits_output"
	defaultStagingSubdir     = "staging"
	defaultPublishSubdir     = "output"
	defaultLogSubdir         = "logs"
	defaultSyntheticFrames   = 30
	defaultFrameWidth        = 256
	defaultFrameHeight       = 256
	defaultMaskBandRatio     = 0.2
	defaultComputeMode       = ComputeAuto
	defaultWeightsDir        = "~/.cache/subclean/weights"
	defaultNvidiaSMI         = "nvidia-smi"
	defaultContainerName     = "output_clean.mp4"
	defaultPublishFPS        = 30
	defaultPublishCodec      = "libx264"
	defaultPublishCRF        = 18
	defaultPixelFormat       = "yuv420p"
	defaultRetryAttempts     = 3
	defaultRetryInitialMs    = 500
	defaultRetryMaxMs        = 8000
	defaultUploadConcurrency = 4
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 14
)

// Compute modes.
const (
	ComputeAuto = "auto"
	ComputeGPU  = "gpu"
	ComputeCPU  = "cpu"
)

// Source modes.
const (
	SourceAuto      = ""
	SourceRemote    = "remote"
	SourceSynthetic = "synthetic"
	SourcePreStaged = "pre-staged"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Source: Source{
			SyntheticFrames: defaultSyntheticFrames,
			FrameWidth:      defaultFrameWidth,
			FrameHeight:     defaultFrameHeight,
			MaskBandRatio:   defaultMaskBandRatio,
		},
		Compute: Compute{
			Mode:       defaultComputeMode,
			WeightsDir: defaultWeightsDir,
			NvidiaSMI:  defaultNvidiaSMI,
		},
		Stages: Stages{
			RequireOutput: true,
			Stage1: StageCommand{
				Name:    "lama",
				Command: "python",
				Args: []string{
					"bin/predict.py",
					"model.path=big-lama",
					"indir={frames}",
					"maskdir={masks}",
					"outdir={output}",
					"device={device}",
				},
			},
			Stage2: StageCommand{
				Name:    "zits",
				Command: "python",
				Args: []string{
					"test_video.py",
					"--video_root", "{frames}",
					"--mask_root", "{masks}",
					"--inpainted_root", "{stage1}",
					"--output_root", "{output}",
					"--device", "{device}",
				},
			},
		},
		Publish: Publish{
			ContainerName: defaultContainerName,
			FPS:           defaultPublishFPS,
			Codec:         defaultPublishCodec,
			CRF:           defaultPublishCRF,
			PixelFormat:   defaultPixelFormat,
			WriteManifest: true,
		},
		Storage: Storage{
			RetryAttempts:      defaultRetryAttempts,
			RetryInitialMillis: defaultRetryInitialMs,
			RetryMaxMillis:     defaultRetryMaxMs,
			UploadConcurrency:  defaultUploadConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
