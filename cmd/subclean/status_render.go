package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"subclean/internal/deps"
	"subclean/internal/preflight"
	"subclean/internal/stage"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// checkPrinter writes the check command report and counts failed lines.
type checkPrinter struct {
	out      io.Writer
	colorize bool
	failures int
}

func newCheckPrinter(out io.Writer) *checkPrinter {
	return &checkPrinter{out: out, colorize: shouldColorize(out)}
}

func (p *checkPrinter) section(title string) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(heading))
	fmt.Fprintln(p.out, p.paint(statusInfo, heading))
	fmt.Fprintln(p.out, p.paint(statusInfo, rule))
}

func (p *checkPrinter) line(label string, kind statusKind, message string) {
	if kind == statusError {
		p.failures++
	}
	fmt.Fprintln(p.out, renderStatusLine(label, kind, message, p.colorize))
}

func (p *checkPrinter) dependency(status deps.Status) {
	p.line(status.Name, dependencyKind(status), dependencyMessage(status))
}

func (p *checkPrinter) result(r preflight.Result) {
	kind := statusOK
	if !r.Passed {
		kind = statusError
	}
	p.line(r.Name, kind, r.Detail)
}

func (p *checkPrinter) tool(name stage.Name, health stage.Health) {
	kind := statusOK
	if !health.Ready() {
		kind = statusError
	}
	p.line(displayLabel(string(name)), kind, health.String())
}

func (p *checkPrinter) paint(kind statusKind, text string) string {
	if !p.colorize {
		return text
	}
	return statusStyles[kind].color + text + ansiReset
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	text := fmt.Sprintf("  %-24s [%s]", label+":", style.label)
	if message != "" {
		text += " " + message
	}
	if colorize {
		return style.color + text + ansiReset
	}
	return text
}

func dependencyKind(status deps.Status) statusKind {
	switch {
	case status.Available():
		return statusOK
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func dependencyMessage(status deps.Status) string {
	if status.Available() {
		return status.Path
	}
	if status.Description == "" {
		return status.Detail
	}
	return fmt.Sprintf("%s (%s)", status.Detail, status.Description)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
