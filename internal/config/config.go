package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"subclean/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directory layout for a run.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	FramesDir  string `toml:"frames_dir"`
	MasksDir   string `toml:"masks_dir"`
	Stage1Dir  string `toml:"stage1_output_dir"`
	Stage2Dir  string `toml:"stage2_output_dir"`
	StagingDir string `toml:"staging_dir"`
	PublishDir string `toml:"publish_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source selects how input frames and masks are acquired.
type Source struct {
	// Mode is one of "", "remote", "synthetic", or "pre-staged". Empty lets the
	// remaining fields decide.
	Mode            string  `toml:"mode"`
	URL             string  `toml:"url"`
	Synthetic       bool    `toml:"synthetic"`
	SyntheticFrames int     `toml:"synthetic_frames"`
	FrameWidth      int     `toml:"frame_width"`
	FrameHeight     int     `toml:"frame_height"`
	ExtractFPS      float64 `toml:"extract_fps"`
	// MaskBandRatio is the fraction of frame height, measured from the bottom,
	// covered by the generated subtitle mask.
	MaskBandRatio float64 `toml:"mask_band_ratio"`
}

// Compute contains hardware selection settings.
type Compute struct {
	Mode       string `toml:"mode"`
	WeightsDir string `toml:"weights_dir"`
	NvidiaSMI  string `toml:"nvidia_smi"`
}

// StageCommand describes how one external inference stage is launched.
type StageCommand struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	WorkDir string   `toml:"work_dir"`
}

// Stages contains inference stage settings.
type Stages struct {
	TimeoutSeconds int          `toml:"timeout_seconds"`
	RequireOutput  bool         `toml:"require_output"`
	Stage1         StageCommand `toml:"stage1"`
	Stage2         StageCommand `toml:"stage2"`
}

// Publish contains reassembly and upload settings.
type Publish struct {
	DestinationURL string `toml:"destination_url"`
	ContainerName  string `toml:"container_name"`
	FPS            int    `toml:"fps"`
	Codec          string `toml:"codec"`
	CRF            int    `toml:"crf"`
	PixelFormat    string `toml:"pixel_format"`
	WriteManifest  bool   `toml:"write_manifest"`
}

// Storage contains remote object store settings.
type Storage struct {
	Region             string `toml:"region"`
	Endpoint           string `toml:"endpoint"`
	UsePathStyle       bool   `toml:"use_path_style"`
	RetryAttempts      int    `toml:"retry_attempts"`
	RetryInitialMillis int    `toml:"retry_initial_ms"`
	RetryMaxMillis     int    `toml:"retry_max_ms"`
	UploadConcurrency  int    `toml:"upload_concurrency"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// RetentionDays prunes per-run log files older than this many days. Zero keeps them all.
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values for subclean.
//
// Configuration sections by subsystem:
//   - Paths: frame, mask, stage output, staging, publish, and log directories
//   - Source: acquisition strategy and frame geometry
//   - Compute: GPU/CPU selection and model weights location
//   - Stages: external inference commands and their gating policy
//   - Publish: container reassembly and remote destination
//   - Storage: S3 client and retry budget
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Compute       Compute       `toml:"compute"`
	Stages        Stages        `toml:"stages"`
	Publish       Publish       `toml:"publish"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// Overrides carries command-line settings that take precedence over the file.
type Overrides struct {
	ComputeMode    string
	SourceMode     string
	SourceURL      string
	DestinationURL string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subclean/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "normalize", "", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "validate", "", err)
	}

	return &cfg, resolvedPath, exists, nil
}

// ApplyOverrides merges command-line settings into the config and re-validates it.
func (c *Config) ApplyOverrides(o Overrides) error {
	if v := strings.TrimSpace(o.ComputeMode); v != "" {
		c.Compute.Mode = v
	}
	if v := strings.TrimSpace(o.SourceMode); v != "" {
		c.Source.Mode = v
		// An explicit mode replaces whatever the file or environment implied.
		c.Source.Synthetic = false
	}
	if v := strings.TrimSpace(o.SourceURL); v != "" {
		c.Source.URL = v
	}
	if v := strings.TrimSpace(o.DestinationURL); v != "" {
		c.Publish.DestinationURL = v
	}
	c.normalizeSource()
	if err := c.normalizeCompute(); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "apply overrides", "", err)
	}
	c.normalizePublish()
	if err := c.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "apply overrides", "", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subclean.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into. Frame and mask
// directories are created too so a pre-staged run finds them, even if empty.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.FramesDir,
		c.Paths.MasksDir,
		c.Paths.Stage1Dir,
		c.Paths.Stage2Dir,
		c.Paths.StagingDir,
		c.Paths.PublishDir,
		c.Paths.LogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for extraction and reassembly.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// NvidiaSMIBinary returns the GPU query tool used by hardware detection.
func (c *Config) NvidiaSMIBinary() string {
	if v := strings.TrimSpace(c.Compute.NvidiaSMI); v != "" {
		return v
	}
	return defaultNvidiaSMI
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
