package pipeline

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"subclean/internal/acquire"
	"subclean/internal/fileutil"
	"subclean/internal/hardware"
	"subclean/internal/history"
	"subclean/internal/notifications"
	"subclean/internal/publish"
	"subclean/internal/runspec"
	"subclean/internal/stage"
)

// Report is the record of one run. It drives exit status selection, the
// console summary, the history ledger, and the YAML manifest.
type Report struct {
	RunID          string           `yaml:"run_id"`
	StartedAt      time.Time        `yaml:"started_at"`
	FinishedAt     time.Time        `yaml:"finished_at"`
	States         []State          `yaml:"states"`
	Context        runspec.Spec     `yaml:"context"`
	Profile        hardware.Profile `yaml:"profile"`
	Acquisition    *acquire.Result  `yaml:"acquisition,omitempty"`
	Stage1         *stage.Outcome   `yaml:"stage1,omitempty"`
	Stage2         *stage.Outcome   `yaml:"stage2,omitempty"`
	Publish        *publish.Outcome `yaml:"publish,omitempty"`
	Classification Classification   `yaml:"classification"`
	ExitCode       int              `yaml:"exit_code"`
	Error          string           `yaml:"error,omitempty"`
}

// Duration is the wall-clock time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcomes returns the stage outcomes that were produced, in stage order.
func (r Report) Outcomes() []stage.Outcome {
	var out []stage.Outcome
	for _, o := range []*stage.Outcome{r.Stage1, r.Stage2} {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Output returns the most useful location of the published container: the
// remote locator when uploaded, else the local path.
func (r Report) Output() string {
	if r.Publish == nil {
		return ""
	}
	if r.Publish.ContainerURL != "" {
		return r.Publish.ContainerURL
	}
	return r.Publish.Container
}

// Warnings counts non-fatal problems recorded during the run.
func (r Report) Warnings() int {
	n := 0
	if r.Publish != nil {
		n += len(r.Publish.Warnings)
	}
	for _, o := range r.Outcomes() {
		if o.Warning != "" {
			n++
		}
	}
	return n
}

// WriteManifest writes the report as YAML to path.
func (r Report) WriteManifest(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := fileutil.WriteAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// HistoryEntry converts the report into a ledger row.
func (r Report) HistoryEntry() history.Entry {
	entry := history.Entry{
		RunID:          r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Classification: string(r.Classification),
		ExitCode:       r.ExitCode,
		Compute:        string(r.Profile.Compute),
		Warnings:       r.Warnings(),
		ErrorMessage:   r.Error,
	}
	if r.Acquisition != nil {
		entry.Strategy = string(r.Acquisition.Strategy)
		entry.Frames = r.Acquisition.Frames
	}
	if r.Stage1 != nil {
		entry.Stage1Status = string(r.Stage1.Status)
	}
	if r.Stage2 != nil {
		entry.Stage2Status = string(r.Stage2.Status)
	}
	if r.Publish != nil {
		entry.Container = r.Publish.Container
		entry.ContainerURL = r.Publish.ContainerURL
	}
	return entry
}

func (r Report) notificationPayload() notifications.Payload {
	payload := notifications.Payload{
		"runID":          r.RunID,
		"classification": string(r.Classification),
		"duration":       r.Duration(),
	}
	if r.Acquisition != nil {
		payload["frames"] = r.Acquisition.Frames
	}
	if out := r.Output(); out != "" {
		payload["output"] = out
	}
	return payload
}
