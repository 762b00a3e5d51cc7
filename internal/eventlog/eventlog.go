// Package eventlog provides the process-wide structured event logger.
//
// Every record is written to two sinks: an append-only log file and the
// console stream. Records come in three categories (API requests, security
// events, performance metrics) with fixed severity routing: security events
// are always warnings, performance metrics informational, and API requests
// escalate to error severity when the response status is 400 or above.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// sourceName tags every emitted line, matching the API's logger name.
const sourceName = "connectly_api"

// anonymousUser is substituted when a record has no authenticated user.
const anonymousUser = "Anonymous"

type Logger struct {
	mu   sync.RWMutex
	log  zerolog.Logger
	file *os.File
}

// Open creates a logger writing to the given file path and to stderr. The
// file is opened append-only and created along with its directory if
// missing; an unopenable file fails construction, since a logger with no
// durable sink is useless.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := newLogger(f, os.Stderr)
	l.file = f
	return l, nil
}

func newLogger(sinks ...io.Writer) *Logger {
	out := fanout{}
	for _, w := range sinks {
		out = append(out, &lineWriter{out: w})
	}
	log := zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	return &Logger{log: log}
}

var (
	initOnce sync.Once
	initErr  error
	deflt    *Logger
)

// Init returns the process-wide logger, opening it on first call. Later
// calls ignore path and return the same instance (and the original error,
// if initialization failed).
func Init(path string) (*Logger, error) {
	initOnce.Do(func() {
		deflt, initErr = Open(path)
	})
	return deflt, initErr
}

// Close releases the file sink. Only useful at process exit; records
// written after Close are still attempted on the console sink.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// SetLevel changes the minimum severity for subsequently emitted records.
// Unknown level names fall back to info.
func (l *Logger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	l.mu.Lock()
	l.log = l.log.Level(lvl)
	l.mu.Unlock()
}

func (l *Logger) logger() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log
}

// LogAPIRequest records one handled HTTP request. Requests that ended in an
// error status (>= 400) are emitted at error severity.
func (l *Logger) LogAPIRequest(method, endpoint, user string, statusCode int) {
	log := l.logger()
	event := log.Info()
	label := "API Request"
	if statusCode >= 400 {
		event = log.Error()
		label = "API Error"
	}
	event.
		Str("method", method).
		Str("endpoint", endpoint).
		Str("user", orAnonymous(user)).
		Int("status_code", statusCode).
		Msg(fmt.Sprintf("%s: method:%s endpoint:%s user:%s status_code:%d",
			label, method, endpoint, orAnonymous(user), statusCode))
}

// LogSecurityEvent records a security-relevant occurrence, always at
// warning severity.
func (l *Logger) LogSecurityEvent(eventType, details, user string) {
	log := l.logger()
	log.Warn().
		Str("event_type", eventType).
		Str("details", details).
		Str("user", orAnonymous(user)).
		Msg(fmt.Sprintf("Security Event: event_type:%s details:%s user:%s",
			eventType, details, orAnonymous(user)))
}

// LogPerformanceMetric records a named measurement at info severity.
func (l *Logger) LogPerformanceMetric(metric string, value float64, details string) {
	log := l.logger()
	event := log.Info().
		Str("metric", metric).
		Float64("value", value)
	msg := fmt.Sprintf("Performance: metric:%s value:%g", metric, value)
	if details != "" {
		event = event.Str("details", details)
		msg += " details:" + details
	}
	event.Msg(msg)
}

func orAnonymous(user string) string {
	if user == "" {
		return anonymousUser
	}
	return user
}

// fanout writes each record to every sink independently. A failing sink
// (disk full, closed stream) never suppresses the others, so Write always
// reports success to zerolog.
type fanout []io.Writer

func (f fanout) Write(p []byte) (int, error) {
	for _, w := range f {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

// lineWriter renders zerolog's JSON events as classic log lines:
//
//	<timestamp> - connectly_api - <SEVERITY> - <message>
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	var event struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p, &event); err != nil {
		// Not a JSON event; pass through untouched.
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.out.Write(p)
	}
	line := fmt.Sprintf("%s - %s - %s - %s\n", event.Time, sourceName, severityName(event.Level), event.Message)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write([]byte(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func severityName(level string) string {
	switch level {
	case zerolog.LevelWarnValue:
		return "WARNING"
	default:
		return strings.ToUpper(level)
	}
}
