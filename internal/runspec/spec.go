package runspec

import (
	"path/filepath"

	"subclean/internal/config"
)

// Spec captures directories, locators, and source selection for one run.
type Spec struct {
	RunID          string `yaml:"run_id"`
	FramesDir      string `yaml:"frames_dir"`
	MasksDir       string `yaml:"masks_dir"`
	Stage1Dir      string `yaml:"stage1_dir"`
	Stage2Dir      string `yaml:"stage2_dir"`
	StagingDir     string `yaml:"staging_dir"`
	PublishDir     string `yaml:"publish_dir"`
	LogDir         string `yaml:"log_dir"`
	SourceURL      string `yaml:"source_url,omitempty"`
	DestinationURL string `yaml:"destination_url,omitempty"`
	UseSynthetic   bool   `yaml:"use_synthetic"`
	// PreStaged is set when the operator explicitly asked for pre-staged data.
	PreStaged     bool   `yaml:"pre_staged"`
	ContainerName string `yaml:"container_name"`
}

// FromConfig builds the run context from a loaded configuration.
func FromConfig(cfg *config.Config, runID string) Spec {
	spec := Spec{
		RunID:          runID,
		FramesDir:      cfg.Paths.FramesDir,
		MasksDir:       cfg.Paths.MasksDir,
		Stage1Dir:      cfg.Paths.Stage1Dir,
		Stage2Dir:      cfg.Paths.Stage2Dir,
		StagingDir:     cfg.Paths.StagingDir,
		PublishDir:     cfg.Paths.PublishDir,
		LogDir:         cfg.Paths.LogDir,
		SourceURL:      cfg.Source.URL,
		DestinationURL: cfg.Publish.DestinationURL,
		UseSynthetic:   cfg.Source.Synthetic,
		ContainerName:  cfg.Publish.ContainerName,
	}
	// SourceURL is carried through untouched: a locator always selects
	// transferred acquisition, whatever the mode says.
	switch cfg.Source.Mode {
	case config.SourceSynthetic:
		spec.UseSynthetic = true
	case config.SourcePreStaged:
		spec.UseSynthetic = false
		spec.PreStaged = true
	}
	return spec
}

// SourceDir is where a transferred media object is downloaded.
func (s Spec) SourceDir() string {
	return filepath.Join(s.StagingDir, "source")
}

// AssemblyDir holds the contiguous frame sequence handed to the muxer.
func (s Spec) AssemblyDir() string {
	return filepath.Join(s.StagingDir, "assembly")
}

// LockPath is the single-run lock guarding the workspace.
func (s Spec) LockPath() string {
	return filepath.Join(s.StagingDir, "subclean.lock")
}

// ContainerPath is the reassembled video location.
func (s Spec) ContainerPath() string {
	name := s.ContainerName
	if name == "" {
		name = "output_clean.mp4"
	}
	return filepath.Join(s.PublishDir, name)
}

// ManifestPath is the YAML run report location.
func (s Spec) ManifestPath() string {
	return filepath.Join(s.PublishDir, "report.yaml")
}
