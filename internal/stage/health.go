package stage

import "fmt"

// Health describes whether the inference tool behind a stage can be launched.
type Health struct {
	Tool string
	// Path is the resolved executable; empty when the tool was not found.
	Path    string
	WorkDir string
	Problem string
}

// ToolFound records a launchable tool.
func ToolFound(tool, path, workDir string) Health {
	return Health{Tool: tool, Path: path, WorkDir: workDir}
}

// ToolMissing records a tool that cannot be launched and why.
func ToolMissing(tool, problem string) Health {
	return Health{Tool: tool, Problem: problem}
}

// Ready reports whether the stage can run.
func (h Health) Ready() bool {
	return h.Problem == "" && h.Path != ""
}

func (h Health) String() string {
	switch {
	case h.Problem != "":
		return h.Problem
	case h.WorkDir != "":
		return fmt.Sprintf("%s (%s in %s)", h.Tool, h.Path, h.WorkDir)
	default:
		return fmt.Sprintf("%s (%s)", h.Tool, h.Path)
	}
}
