package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// output is shared by every Logger so that lines from concurrent workers
// never interleave.
type output struct {
	mu        sync.Mutex
	w         io.Writer
	level     Level
	redactPII bool
}

var std = &output{w: os.Stderr, level: INFO, redactPII: true}

// Logger emits structured JSON lines tagged with a component name.
type Logger struct {
	out       *output
	component string
	fields    []interface{}
}

// New returns a logger bound to the given component.
func New(component string) *Logger {
	return &Logger{out: std, component: component}
}

// NewWithWriter returns a logger writing to w at the given level. Used by tests
// to capture output.
func NewWithWriter(w io.Writer, level Level, component string) *Logger {
	return &Logger{out: &output{w: w, level: level, redactPII: true}, component: component}
}

// With returns a child logger that adds the key/value pairs to every entry.
func (l *Logger) With(fields ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{out: l.out, component: l.component, fields: merged}
}

// SetLevel sets the minimum log level for the default output.
func SetLevel(l Level) {
	std.mu.Lock()
	std.level = l
	std.mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default output.
func SetRedactPII(r bool) {
	std.mu.Lock()
	std.redactPII = r
	std.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func (l *Logger) Info(msg string, fields ...interface{}) { l.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func (l *Logger) Warn(msg string, fields ...interface{}) { l.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields...) }

// Info emits an INFO-level entry on the default output without a component.
func Info(msg string, fields ...interface{}) { (&Logger{out: std}).log(INFO, msg, fields...) }

// Warn emits a WARN-level entry on the default output without a component.
func Warn(msg string, fields ...interface{}) { (&Logger{out: std}).log(WARN, msg, fields...) }

// Error emits an ERROR-level entry on the default output without a component.
func Error(msg string, fields ...interface{}) { (&Logger{out: std}).log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if level < l.out.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}

	all := append(append([]interface{}{}, l.fields...), fields...)
	for i := 0; i < len(all)-1; i += 2 {
		key := fmt.Sprintf("%v", all[i])
		val := fmt.Sprintf("%v", all[i+1])
		if l.out.redactPII {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	fmt.Fprintln(l.out.w, string(data))
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
