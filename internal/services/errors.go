package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers for Wrap and Classify.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap joins scope, operation and message into one error tagged with marker
// so Classify can recover it. A nil marker means ErrTransient.
func Wrap(marker error, scope, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := buildDetail(scope, operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var classes = []struct {
	marker error
	name   string
}{
	{ErrValidation, "validation"},
	{ErrNotFound, "not_found"},
	{ErrConfiguration, "configuration"},
	{ErrTimeout, "timeout"},
	{ErrExternalTool, "external_tool"},
}

// Classify maps an error to the short class recorded in the event journal and
// metrics labels. A nil error classifies as "ok"; unmarked errors are
// "transient".
func Classify(err error) string {
	if err == nil {
		return "ok"
	}
	for _, class := range classes {
		if errors.Is(err, class.marker) {
			return class.name
		}
	}
	return "transient"
}

func buildDetail(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
