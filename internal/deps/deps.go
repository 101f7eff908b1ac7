package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"subclean/internal/services"
)

// lookPath resolves executables; tests swap it to avoid touching PATH.
var lookPath = exec.LookPath

// Requirement is an external binary a run may invoke.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional binaries degrade a run instead of blocking it (nvidia-smi).
	Optional bool
}

// Status is the result of resolving one Requirement.
type Status struct {
	Requirement
	// Path is the resolved executable; empty when the binary is unavailable.
	Path   string
	Detail string
}

// Available reports whether the binary resolved.
func (s Status) Available() bool {
	return s.Path != ""
}

// Report holds the statuses of a requirement set in declaration order.
type Report []Status

// Check resolves every requirement.
func Check(requirements []Requirement) Report {
	report := make(Report, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		switch path, err := resolve(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Path = path
		}
		report = append(report, status)
	}
	return report
}

func resolve(command string) (string, error) {
	if command == "" {
		return "", exec.ErrNotFound
	}
	return lookPath(command)
}

// Missing returns the names of required binaries that did not resolve.
func (r Report) Missing() []string {
	var missing []string
	for _, status := range r {
		if !status.Available() && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

// Err returns an external tool error naming every missing required binary,
// or nil when a run can start.
func (r Report) Err() error {
	missing := r.Missing()
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "deps", "check",
		"missing required dependencies: "+strings.Join(missing, ", "), nil)
}
