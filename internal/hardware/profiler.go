package hardware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"subclean/internal/logging"
)

// Mode selects how the profiler chooses a device.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeGPU  Mode = "gpu"
	ModeCPU  Mode = "cpu"
)

// CommandRunner executes a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

const probeTimeout = 10 * time.Second

var queryArgs = []string{"--query-gpu=name,memory.total", "--format=csv,noheader,nounits"}

// Options configure a Profiler.
type Options struct {
	Mode       Mode
	WeightsDir string
	NvidiaSMI  string
	Runner     CommandRunner
	Logger     *slog.Logger
}

// Profiler detects the compute device once and memoizes the result.
type Profiler struct {
	opts    Options
	logger  *slog.Logger
	once    sync.Once
	profile Profile
}

// NewProfiler constructs a profiler. A nil runner uses os/exec.
func NewProfiler(opts Options) *Profiler {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.NvidiaSMI == "" {
		opts.NvidiaSMI = "nvidia-smi"
	}
	if opts.Runner == nil {
		opts.Runner = execRunner
	}
	return &Profiler{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "hardware")}
}

// Profile returns the device profile. It never fails: any detection problem
// yields a CPU profile.
func (p *Profiler) Profile(ctx context.Context) Profile {
	p.once.Do(func() {
		p.profile = p.detect(ctx)
		p.logger.Info("device profile resolved",
			logging.Args(append(logging.DecisionAttrs("compute_device", string(p.profile.Compute), p.profile.Source),
				logging.Bool("fetch_weights", p.profile.FetchWeights),
				logging.Int("gpu_count", len(p.profile.GPUs)),
				logging.String(logging.FieldEventType, "device_profiled"),
			)...)...,
		)
	})
	return p.profile
}

func (p *Profiler) detect(ctx context.Context) Profile {
	switch p.opts.Mode {
	case ModeCPU:
		return Profile{Compute: ComputeCPU, Source: "override"}
	case ModeGPU:
		gpus, _ := p.query(ctx)
		return Profile{
			Compute:      ComputeGPU,
			FetchWeights: !weightsPresent(p.opts.WeightsDir),
			GPUs:         gpus,
			Source:       "override",
		}
	}

	gpus, err := p.query(ctx)
	if err != nil {
		p.logger.Debug("gpu probe failed; using cpu", logging.Error(err))
		return Profile{Compute: ComputeCPU, Source: "probe", Detail: err.Error()}
	}
	return Profile{
		Compute:      ComputeGPU,
		FetchWeights: !weightsPresent(p.opts.WeightsDir),
		GPUs:         gpus,
		Source:       "probe",
	}
}

func (p *Profiler) query(ctx context.Context) ([]GPU, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := p.opts.Runner(probeCtx, p.opts.NvidiaSMI, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.opts.NvidiaSMI, err)
	}
	return parseGPUs(out)
}

// parseGPUs reads nvidia-smi CSV output ("name, memory") one device per line.
func parseGPUs(out []byte) ([]GPU, error) {
	var gpus []GPU
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ",")
		if idx <= 0 {
			return nil, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		name := strings.TrimSpace(line[:idx])
		mem, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil || name == "" {
			return nil, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		gpus = append(gpus, GPU{Name: name, MemoryMiB: mem})
	}
	if len(gpus) == 0 {
		return nil, fmt.Errorf("nvidia-smi reported no devices")
	}
	return gpus, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
