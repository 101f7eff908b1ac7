package hardware

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
)

// Compute is the device kind stage tools run on.
type Compute string

const (
	ComputeGPU Compute = "gpu"
	ComputeCPU Compute = "cpu"
)

// DeviceFlag is the value passed to stage tools in place of {device}.
func (c Compute) DeviceFlag() string {
	if c == ComputeGPU {
		return "cuda"
	}
	return "cpu"
}

// GPU describes one device reported by nvidia-smi.
type GPU struct {
	Name      string `yaml:"name"`
	MemoryMiB int    `yaml:"memory_mib"`
}

// Profile is produced once per run and never mutated.
type Profile struct {
	Compute Compute `yaml:"compute"`
	// FetchWeights is true only when Compute is GPU and the weights
	// directory holds no prior artifact.
	FetchWeights bool   `yaml:"fetch_weights"`
	GPUs         []GPU  `yaml:"gpus,omitempty"`
	Source       string `yaml:"source"`
	Detail       string `yaml:"detail,omitempty"`
}

// GPUAvailable reports whether the profile selected a GPU.
func (p Profile) GPUAvailable() bool {
	return p.Compute == ComputeGPU
}

// Env returns the variables exported to stage subprocesses.
func (p Profile) Env() []string {
	return []string{
		"PIPELINE_DEVICE=" + p.Compute.DeviceFlag(),
		"PIPELINE_GPU_AVAILABLE=" + strconv.FormatBool(p.GPUAvailable()),
		"PIPELINE_DOWNLOAD_WEIGHTS=" + strconv.FormatBool(p.FetchWeights),
	}
}

// weightsPresent reports whether dir exists and has at least one entry.
func weightsPresent(dir string) bool {
	if dir == "" {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			// Unreadable counts as present so a permissions problem does not
			// trigger a redundant download into the same directory.
			return true
		}
		return false
	}
	return len(entries) > 0
}
