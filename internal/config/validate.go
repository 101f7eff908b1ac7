package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateCompute(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.FramesDir) == "" {
		return errors.New("paths.frames_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MasksDir) == "" {
		return errors.New("paths.masks_dir must be set")
	}
	if c.Paths.FramesDir == c.Paths.MasksDir {
		return errors.New("paths.frames_dir and paths.masks_dir must differ")
	}
	if c.Paths.Stage1Dir == c.Paths.Stage2Dir {
		return errors.New("paths.stage1_output_dir and paths.stage2_output_dir must differ")
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Mode {
	case SourceAuto, SourceRemote, SourceSynthetic, SourcePreStaged:
	default:
		return fmt.Errorf("source.mode must be one of remote, synthetic, pre-staged (got %q)", c.Source.Mode)
	}
	if c.Source.Mode == SourceRemote && c.Source.URL == "" {
		return errors.New("source.url must be set when source.mode is remote")
	}
	if c.Source.URL != "" && (c.Source.Mode == SourceSynthetic || c.Source.Mode == SourcePreStaged) {
		return fmt.Errorf("source.url %q requires remote acquisition; clear it or drop source.mode = %q", c.Source.URL, c.Source.Mode)
	}
	if c.Source.URL != "" {
		if err := validateLocator("source.url", c.Source.URL); err != nil {
			return err
		}
	}
	if c.Source.SyntheticFrames <= 0 {
		return errors.New("source.synthetic_frames must be positive")
	}
	if c.Source.FrameWidth <= 0 || c.Source.FrameHeight <= 0 {
		return errors.New("source.frame_width and source.frame_height must be positive")
	}
	if c.Source.ExtractFPS < 0 {
		return errors.New("source.extract_fps must be zero or positive")
	}
	if c.Source.MaskBandRatio <= 0 || c.Source.MaskBandRatio > 1 {
		return errors.New("source.mask_band_ratio must be within (0, 1]")
	}
	return nil
}

func (c *Config) validateCompute() error {
	switch c.Compute.Mode {
	case ComputeAuto, ComputeGPU, ComputeCPU:
		return nil
	default:
		return fmt.Errorf("compute.mode must be one of auto, gpu, cpu (got %q)", c.Compute.Mode)
	}
}

func (c *Config) validateStages() error {
	if c.Stages.TimeoutSeconds < 0 {
		return errors.New("stages.timeout_seconds must be zero or positive")
	}
	for _, sc := range []struct {
		key string
		cmd StageCommand
	}{
		{"stages.stage1", c.Stages.Stage1},
		{"stages.stage2", c.Stages.Stage2},
	} {
		if sc.cmd.Command == "" {
			return fmt.Errorf("%s.command must be set", sc.key)
		}
	}
	return nil
}

func (c *Config) validatePublish() error {
	if c.Publish.DestinationURL != "" {
		if err := validateLocator("publish.destination_url", c.Publish.DestinationURL); err != nil {
			return err
		}
	}
	if strings.ContainsAny(c.Publish.ContainerName, `/\`) {
		return errors.New("publish.container_name must be a bare file name")
	}
	if c.Publish.FPS <= 0 {
		return errors.New("publish.fps must be positive")
	}
	if c.Publish.CRF < 0 || c.Publish.CRF > 51 {
		return errors.New("publish.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if err := ensurePositiveMap(map[string]int{
		"storage.retry_attempts":     c.Storage.RetryAttempts,
		"storage.retry_initial_ms":   c.Storage.RetryInitialMillis,
		"storage.retry_max_ms":       c.Storage.RetryMaxMillis,
		"storage.upload_concurrency": c.Storage.UploadConcurrency,
	}); err != nil {
		return err
	}
	if c.Storage.RetryMaxMillis < c.Storage.RetryInitialMillis {
		return errors.New("storage.retry_max_ms must be at least storage.retry_initial_ms")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func validateLocator(key, value string) error {
	switch {
	case strings.HasPrefix(value, "s3://"):
		rest := strings.TrimPrefix(value, "s3://")
		if rest == "" || strings.HasPrefix(rest, "/") {
			return fmt.Errorf("%s must name a bucket (got %q)", key, value)
		}
		return nil
	case strings.HasPrefix(value, "file://"):
		if strings.TrimPrefix(value, "file://") == "" {
			return fmt.Errorf("%s must name a path (got %q)", key, value)
		}
		return nil
	default:
		return fmt.Errorf("%s must use the s3:// or file:// scheme (got %q)", key, value)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
