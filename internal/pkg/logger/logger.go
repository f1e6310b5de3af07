package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the severity of a log entry.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// Shared sink and policy. Each package holds its own named Logger, but
// level, redaction, and the output stream are process-wide so operators
// tune them in one place.
var (
	minLevel atomic.Int32
	redact   atomic.Bool

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() {
	minLevel.Store(int32(INFO))
	redact.Store(true)
}

// SetLevel sets the minimum level for every logger in the process.
func SetLevel(l Level) { minLevel.Store(int32(l)) }

// SetRedactPII toggles PII redaction for every logger in the process.
// Recipient addresses flow through nearly every entry, so it defaults
// to on.
func SetRedactPII(r bool) { redact.Store(r) }

// SetOutput redirects all loggers to w. Tests capture entries this way.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Logger emits structured JSON entries tagged with a component name so
// a single request can be followed across packages.
type Logger struct {
	component string
}

// New returns a logger whose entries carry the given component name.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.emit(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.emit(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.emit(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.emit(ERROR, msg, fields...) }

// root serves the package-level functions, for call sites with no
// component of their own (composition roots, CLIs).
var root = New("")

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { root.emit(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { root.emit(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { root.emit(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { root.emit(ERROR, msg, fields...) }

func (l *Logger) emit(level Level, msg string, fields ...interface{}) {
	if int32(level) < minLevel.Load() {
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

	doRedact := redact.Load()
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if doRedact {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	outMu.Lock()
	fmt.Fprintln(out, string(data))
	outMu.Unlock()
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") || strings.Contains(key, "address") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields.
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
