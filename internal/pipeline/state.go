package pipeline

import "subclean/internal/stage"

// State is a point in the run state machine.
type State string

const (
	StateInit       State = "init"
	StateProfiled   State = "profiled"
	StateAcquired   State = "acquired"
	StateStage1Done State = "stage1_done"
	StateStage2Done State = "stage2_done"
	StatePublished  State = "published"
	StateTerminal   State = "terminal"
)

// Classification is the terminal verdict of a run.
type Classification string

const (
	Success Classification = "success"
	Partial Classification = "partial"
	Failed  Classification = "failed"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitInternal = 2
)

// Classify folds acquisition and stage outcomes into a verdict. A run whose
// acquisition failed is failed; one where every stage completed is a
// success; anything in between is partial.
func Classify(acquired bool, outcomes ...stage.Outcome) Classification {
	if !acquired {
		return Failed
	}
	if len(outcomes) == 0 {
		return Partial
	}
	for _, o := range outcomes {
		if !o.Completed() {
			return Partial
		}
	}
	return Success
}

// ExitCode maps a classification to the process exit status.
func (c Classification) ExitCode() int {
	if c == Failed {
		return ExitFailed
	}
	return ExitOK
}
