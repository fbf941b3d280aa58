package log

import (
	"context"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the encoder used for log lines. Keys are sorted so output is stable.
var JSON = jsoniter.Config{
	EscapeHTML:                    true,
	SortMapKeys:                   true,
	ValidateJsonRawMessage:        true,
	ObjectFieldMustBeSimpleString: true,
}.Froze()

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type jsonLogger struct {
	level  Level
	out    io.Writer
	mu     *sync.Mutex
	fields map[string]any
	now    func() time.Time
}

// New returns a Logger writing one JSON object per line to w.
// Entries below level are discarded. A nil writer discards everything.
func New(level Level, w io.Writer) Logger {
	if w == nil {
		w = io.Discard
	}
	return &jsonLogger{level: level, out: w, mu: &sync.Mutex{}, now: time.Now}
}

func (l *jsonLogger) With(args ...any) Logger {
	add := parseArgs(args...)
	if len(add) == 0 {
		return l
	}
	fields := make(map[string]any, len(l.fields)+len(add))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range add {
		fields[k] = v
	}
	// Derived loggers share the writer lock so lines never interleave.
	return &jsonLogger{level: l.level, out: l.out, mu: l.mu, fields: fields, now: l.now}
}

func (l *jsonLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

func (l *jsonLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelDebug, msg, args)
}

func (l *jsonLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelInfo, msg, args)
}

func (l *jsonLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelWarn, msg, args)
}

func (l *jsonLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelError, msg, args)
}

// log merges fields in increasing precedence: context, logger, call site.
// The core keys always win.
func (l *jsonLogger) log(ctx context.Context, level Level, msg string, args []any) {
	if level < l.level {
		return
	}

	ctxFields := fieldsFromContext(ctx)
	callFields := parseArgs(args...)
	entry := make(map[string]any, 3+len(ctxFields)+len(l.fields)+len(callFields))
	for k, v := range ctxFields {
		entry[k] = v
	}
	for k, v := range l.fields {
		entry[k] = v
	}
	for k, v := range callFields {
		entry[k] = v
	}
	entry["timestamp"] = l.now().UTC().Format(timestampLayout)
	entry["level"] = level.String()
	entry["message"] = msg

	line, err := JSON.Marshal(entry)
	if err != nil {
		line, _ = JSON.Marshal(map[string]any{
			"timestamp": entry["timestamp"],
			"level":     LevelError.String(),
			"message":   "failed to marshal log entry",
			"error":     err.Error(),
		})
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(line)
}
