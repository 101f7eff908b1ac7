package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subclean/internal/config"
	"subclean/internal/stage"
)

// Invocation carries everything a stage tool needs for one run.
type Invocation struct {
	Stage      string
	FramesDir  string
	MasksDir   string
	Stage1Dir  string
	OutputDir  string
	Device     string
	WeightsDir string
	// Env is appended to the parent environment.
	Env []string
	// OnOutput receives each stdout/stderr line; nil discards output.
	OnOutput func(string)
}

// Tool runs one inference stage. A non-nil error means the tool could not be
// launched or was interrupted; otherwise exitCode is the process status.
type Tool interface {
	Run(ctx context.Context, inv Invocation) (exitCode int, err error)
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(string)) (int, error)
}

// Command is a fully rendered process invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Option configures a CommandTool.
type Option func(*CommandTool)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(t *CommandTool) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// CommandTool is a Tool backed by a configured external command.
type CommandTool struct {
	name    string
	command string
	args    []string
	workDir string
	exec    Executor
}

// NewCommandTool builds a tool from a stage command definition.
func NewCommandTool(cfg config.StageCommand, opts ...Option) (*CommandTool, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, errors.New("stage command required")
	}
	tool := &CommandTool{
		name:    cfg.Name,
		command: command,
		args:    append([]string(nil), cfg.Args...),
		workDir: cfg.WorkDir,
		exec:    processExecutor{},
	}
	for _, opt := range opts {
		opt(tool)
	}
	return tool, nil
}

// Name returns the configured stage tool name.
func (t *CommandTool) Name() string {
	return t.name
}

// Render returns the command that Run would execute for inv.
func (t *CommandTool) Render(inv Invocation) Command {
	replacer := strings.NewReplacer(
		"{frames}", inv.FramesDir,
		"{masks}", inv.MasksDir,
		"{stage1}", inv.Stage1Dir,
		"{output}", inv.OutputDir,
		"{device}", inv.Device,
		"{weights}", inv.WeightsDir,
	)
	args := make([]string, len(t.args))
	for i, arg := range t.args {
		args[i] = replacer.Replace(arg)
	}
	return Command{
		Binary: t.command,
		Args:   args,
		Dir:    t.workDir,
		Env:    append(os.Environ(), inv.Env...),
	}
}

// Run executes the stage command and returns its exit status.
func (t *CommandTool) Run(ctx context.Context, inv Invocation) (int, error) {
	return t.exec.Run(ctx, t.Render(inv), inv.OnOutput)
}

// Check reports whether the command and its working directory are available.
func (t *CommandTool) Check() stage.Health {
	label := t.name
	if label == "" {
		label = t.command
	}
	path, err := exec.LookPath(t.command)
	if err != nil {
		return stage.ToolMissing(label, fmt.Sprintf("%s not found in PATH", t.command))
	}
	if t.workDir != "" {
		if info, err := os.Stat(t.workDir); err != nil || !info.IsDir() {
			return stage.ToolMissing(label, fmt.Sprintf("work dir %s not found", filepath.Clean(t.workDir)))
		}
	}
	return stage.ToolFound(label, path, t.workDir)
}
