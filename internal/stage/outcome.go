package stage

import "time"

// Name identifies one of the two inference stages.
type Name string

const (
	Stage1 Name = "stage1"
	Stage2 Name = "stage2"
)

// Status classifies how a stage ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the immutable record a stage runner returns. It is created once
// and only read afterwards.
type Outcome struct {
	Stage     Name          `yaml:"stage"`
	Status    Status        `yaml:"status"`
	OutputDir string        `yaml:"output_dir"`
	ExitCode  int           `yaml:"exit_code"`
	Reason    string        `yaml:"reason,omitempty"`
	Warning   string        `yaml:"warning,omitempty"`
	Outputs   int           `yaml:"outputs"`
	Duration  time.Duration `yaml:"duration"`
}

// Completed reports whether the stage finished with usable status.
func (o Outcome) Completed() bool {
	return o.Status == StatusCompleted
}

// Skipped constructs the outcome for a stage whose precondition failed.
func Skipped(name Name, outputDir, reason string) Outcome {
	return Outcome{Stage: name, Status: StatusSkipped, OutputDir: outputDir, ExitCode: -1, Reason: reason}
}
