package acquire

import "subclean/internal/runspec"

// Strategy names the acquisition path taken for a run.
type Strategy string

const (
	StrategyTransferred Strategy = "transferred"
	StrategySynthesized Strategy = "synthesized"
	StrategyPreStaged   Strategy = "pre-staged"
)

// Resolve picks the strategy for spec. A source locator always wins over the
// synthetic flag.
func Resolve(spec runspec.Spec) Strategy {
	switch {
	case spec.SourceURL != "":
		return StrategyTransferred
	case spec.UseSynthetic:
		return StrategySynthesized
	default:
		return StrategyPreStaged
	}
}

// Result describes the frames and masks a run will process.
type Result struct {
	Strategy  Strategy `yaml:"strategy"`
	FramesDir string   `yaml:"frames_dir"`
	MasksDir  string   `yaml:"masks_dir"`
	Frames    int      `yaml:"frames"`
	Masks     int      `yaml:"masks"`
	Source    string   `yaml:"source,omitempty"`
	// MasksDerived is set when masks were generated from the frames.
	MasksDerived bool `yaml:"masks_derived"`
}
