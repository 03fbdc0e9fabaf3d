package services

import "context"

type contextKey string

const (
	channelKey   contextKey = "channel"
	overlayKey   contextKey = "overlay"
	eventIDKey   contextKey = "event_id"
	requestIDKey contextKey = "request_id"
)

// WithChannel annotates context with the logical overlay channel name.
func WithChannel(ctx context.Context, channel string) context.Context {
	if channel == "" {
		return ctx
	}
	return context.WithValue(ctx, channelKey, channel)
}

// ChannelFromContext returns the channel name if present.
func ChannelFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(channelKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOverlay annotates context with the overlay instance name.
func WithOverlay(ctx context.Context, overlay string) context.Context {
	if overlay == "" {
		return ctx
	}
	return context.WithValue(ctx, overlayKey, overlay)
}

// OverlayFromContext returns the overlay instance name if present.
func OverlayFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(overlayKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEventID annotates context with the director event identifier.
func WithEventID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, eventIDKey, id)
}

// EventIDFromContext extracts the director event identifier if present.
func EventIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(eventIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
