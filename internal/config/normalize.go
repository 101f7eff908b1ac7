package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	if err := c.normalizeCompute(); err != nil {
		return err
	}
	c.normalizeStages()
	c.normalizePublish()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	fields := []struct {
		key    string
		value  *string
		subdir string
	}{
		{"paths.frames_dir", &c.Paths.FramesDir, defaultFramesSubdir},
		{"paths.masks_dir", &c.Paths.MasksDir, defaultMasksSubdir},
		{"paths.stage1_output_dir", &c.Paths.Stage1Dir, defaultStage1Subdir},
		{"paths.stage2_output_dir", &c.Paths.Stage2Dir, defaultStage2Subdir},
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingSubdir},
		{"paths.publish_dir", &c.Paths.PublishDir, defaultPublishSubdir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogSubdir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = filepath.Join(c.Paths.DataDir, field.subdir)
		}
		if *field.value, err = expandPath(*field.value); err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.Mode = strings.ToLower(strings.TrimSpace(c.Source.Mode))
	switch c.Source.Mode {
	case "prestaged", "pre_staged", "staged":
		c.Source.Mode = SourcePreStaged
	case "s3":
		c.Source.Mode = SourceRemote
	}

	c.Source.URL = strings.TrimSpace(c.Source.URL)
	// An explicit local mode does not inherit a locator from the environment.
	if c.Source.URL == "" && c.Source.Mode != SourceSynthetic && c.Source.Mode != SourcePreStaged {
		if value, ok := lookupEnv("SUBCLEAN_SOURCE_URL", "S3_INPUT_URL"); ok {
			c.Source.URL = value
		}
	}
	if c.Source.Mode == SourceAuto && !c.Source.Synthetic {
		if value, ok := os.LookupEnv("USE_SYNTHETIC_DATA"); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				c.Source.Synthetic = parsed
			}
		}
	}
	switch c.Source.Mode {
	case SourceSynthetic:
		c.Source.Synthetic = true
	case SourcePreStaged:
		c.Source.Synthetic = false
	}

	if c.Source.SyntheticFrames <= 0 {
		c.Source.SyntheticFrames = defaultSyntheticFrames
	}
	if c.Source.FrameWidth <= 0 {
		c.Source.FrameWidth = defaultFrameWidth
	}
	if c.Source.FrameHeight <= 0 {
		c.Source.FrameHeight = defaultFrameHeight
	}
	if c.Source.MaskBandRatio == 0 {
		c.Source.MaskBandRatio = defaultMaskBandRatio
	}
}

func (c *Config) normalizeCompute() error {
	c.Compute.Mode = strings.ToLower(strings.TrimSpace(c.Compute.Mode))
	if c.Compute.Mode == "" {
		if value, ok := os.LookupEnv("PIPELINE_DEVICE"); ok {
			c.Compute.Mode = strings.ToLower(strings.TrimSpace(value))
		}
	}
	switch c.Compute.Mode {
	case "", ComputeAuto:
		c.Compute.Mode = ComputeAuto
	case "cuda":
		c.Compute.Mode = ComputeGPU
	}
	if strings.TrimSpace(c.Compute.WeightsDir) == "" {
		c.Compute.WeightsDir = defaultWeightsDir
	}
	var err error
	if c.Compute.WeightsDir, err = expandPath(c.Compute.WeightsDir); err != nil {
		return fmt.Errorf("compute.weights_dir: %w", err)
	}
	c.Compute.NvidiaSMI = strings.TrimSpace(c.Compute.NvidiaSMI)
	return nil
}

func (c *Config) normalizeStages() {
	if c.Stages.TimeoutSeconds < 0 {
		c.Stages.TimeoutSeconds = 0
	}
	for _, sc := range []*StageCommand{&c.Stages.Stage1, &c.Stages.Stage2} {
		sc.Name = strings.TrimSpace(sc.Name)
		sc.Command = strings.TrimSpace(sc.Command)
		sc.WorkDir = strings.TrimSpace(sc.WorkDir)
		if sc.WorkDir != "" {
			if expanded, err := expandPath(sc.WorkDir); err == nil {
				sc.WorkDir = expanded
			}
		}
	}
	if c.Stages.Stage1.Name == "" {
		c.Stages.Stage1.Name = "stage1"
	}
	if c.Stages.Stage2.Name == "" {
		c.Stages.Stage2.Name = "stage2"
	}
}

func (c *Config) normalizePublish() {
	c.Publish.DestinationURL = strings.TrimSpace(c.Publish.DestinationURL)
	if c.Publish.DestinationURL == "" {
		if value, ok := lookupEnv("SUBCLEAN_DEST_URL", "S3_OUTPUT_URL"); ok {
			c.Publish.DestinationURL = value
		}
	}
	c.Publish.DestinationURL = strings.TrimRight(c.Publish.DestinationURL, "/")
	c.Publish.ContainerName = strings.TrimSpace(c.Publish.ContainerName)
	if c.Publish.ContainerName == "" {
		c.Publish.ContainerName = defaultContainerName
	}
	if c.Publish.FPS == 0 {
		c.Publish.FPS = defaultPublishFPS
	}
	c.Publish.Codec = strings.TrimSpace(c.Publish.Codec)
	if c.Publish.Codec == "" {
		c.Publish.Codec = defaultPublishCodec
	}
	c.Publish.PixelFormat = strings.TrimSpace(c.Publish.PixelFormat)
	if c.Publish.PixelFormat == "" {
		c.Publish.PixelFormat = defaultPixelFormat
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.RetryAttempts <= 0 {
		c.Storage.RetryAttempts = defaultRetryAttempts
	}
	if c.Storage.RetryInitialMillis <= 0 {
		c.Storage.RetryInitialMillis = defaultRetryInitialMs
	}
	if c.Storage.RetryMaxMillis <= 0 {
		c.Storage.RetryMaxMillis = defaultRetryMaxMs
	}
	if c.Storage.UploadConcurrency <= 0 {
		c.Storage.UploadConcurrency = defaultUploadConcurrency
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
