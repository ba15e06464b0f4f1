// Package logging provides a small leveled logger with key/value context.
// Output goes through the standard log package so tests can capture it.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config string to a Level. Unknown values fall back to warn.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelWarn, false
	}
}

type sink struct {
	mu       sync.RWMutex
	minLevel Level
	output   *log.Logger
}

// Logger writes leveled messages with attached fields. Loggers derived with
// With share level and output with their parent.
type Logger struct {
	sink   *sink
	fields map[string]interface{}
}

// New creates a Logger at warn level writing to stderr.
func New() *Logger {
	return &Logger{
		sink: &sink{
			minLevel: LevelWarn,
			output:   log.New(os.Stderr, "", log.LstdFlags),
		},
		fields: map[string]interface{}{},
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	l := New()
	l.SetOutput(log.New(io.Discard, "", 0))
	l.SetLevel(LevelError + 1)
	return l
}

// SetLevel sets the minimum level for this logger and everything derived from it.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

// SetOutput redirects output.
func (l *Logger) SetOutput(output *log.Logger) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = output
}

// With returns a Logger carrying one more field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a Logger carrying the given fields in addition to its own.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{sink: l.sink, fields: merged}
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) { l.log(LevelDebug, msg, keyVals...) }
func (l *Logger) Info(msg string, keyVals ...interface{})  { l.log(LevelInfo, msg, keyVals...) }
func (l *Logger) Warn(msg string, keyVals ...interface{})  { l.log(LevelWarn, msg, keyVals...) }
func (l *Logger) Error(msg string, keyVals ...interface{}) { l.log(LevelError, msg, keyVals...) }

func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.sink.mu.RLock()
	minLevel := l.sink.minLevel
	output := l.sink.output
	l.sink.mu.RUnlock()

	if level < minLevel {
		return
	}

	all := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for k, v := range l.fields {
		all[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		if key, ok := keyVals[i].(string); ok {
			all[key] = keyVals[i+1]
		}
	}

	var sb strings.Builder
	sb.WriteString(level.String())
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(all) > 0 {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(all[k]))
		}
	}

	output.Print(sb.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" || strings.ContainsAny(val, " \t\n") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprint(v)
	}
}
