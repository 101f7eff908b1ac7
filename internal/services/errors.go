package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrStageSkipped    = errors.New("stage skipped")
	ErrExternalTool    = errors.New("external tool error")
	ErrPublish         = errors.New("publish warning")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort the run with the internal exit
// status. Missing input is not fatal: it classifies the run as failed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether a storage failure may succeed on another attempt.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
