package log

import (
	"context"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel maps a LOG_LEVEL style string to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "INFO"
}

type Logger interface {
	// With adds persistent fields to a derived logger.
	// Accepts either alternating "key", value pairs or a single map[string]any.
	With(args ...any) Logger

	// WithError adds a persistent "error" field to a derived logger.
	WithError(err error) Logger

	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

type fieldsKey struct{}

// ContextWithFields returns a context carrying fields that every logger call
// made with it will include. Fields already on ctx are kept unless overridden.
func ContextWithFields(ctx context.Context, args ...any) context.Context {
	add := parseArgs(args...)
	if len(add) == 0 {
		return ctx
	}
	prev := fieldsFromContext(ctx)
	merged := make(map[string]any, len(prev)+len(add))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range add {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fieldsFromContext(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(fieldsKey{}).(map[string]any)
	return m
}

// parseArgs turns alternating key/value pairs (or a single map) into a map.
// Non-string keys and a trailing key without value are dropped.
func parseArgs(args ...any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 {
		if m, ok := args[0].(map[string]any); ok {
			return m
		}
	}
	out := make(map[string]any, (len(args)+1)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			out[k] = normalize(args[i+1])
		}
	}
	return out
}

// normalize renders errors as their message; jsoniter would otherwise emit {}.
func normalize(v any) any {
	if err, ok := v.(error); ok && err != nil {
		return err.Error()
	}
	return v
}
