package logging

import (
	"context"
	"log/slog"

	"overlaycast/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldChannel is the logical overlay channel a record belongs to.
	FieldChannel = "channel"
	// FieldOverlay is the overlay instance name.
	FieldOverlay = "overlay"
	// FieldEventID is the director-assigned event identifier.
	FieldEventID = "event_id"
	// FieldEventType classifies a record for filtering (e.g. ack_sent, reconnect_scheduled).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

var contextExtractors = []struct {
	key     string
	extract func(context.Context) (string, bool)
}{
	{FieldChannel, services.ChannelFromContext},
	{FieldOverlay, services.OverlayFromContext},
	{FieldEventID, services.EventIDFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the identifiers stored on ctx as slog attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, ex := range contextExtractors {
		if value, ok := ex.extract(ctx); ok {
			fields = append(fields, slog.String(ex.key, value))
		}
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
