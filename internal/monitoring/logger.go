// Package monitoring holds the process-wide diagnostic loggers: a printf-style
// Logf for free-form messages and a structured zerolog.Logger for per-frame
// and per-run events.
package monitoring

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(os.Stderr)
)

// Logf is the package-level diagnostic logger. It defaults to an info-level
// zerolog message but may be replaced by SetLogger. Tests or production code
// can redirect or mute it.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Logger returns the structured logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// SetOutput sends structured output to w in console format. Passing nil
// discards it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		logger = zerolog.Nop()
		return
	}
	level := logger.GetLevel()
	if level == zerolog.Disabled {
		level = zerolog.InfoLevel
	}
	logger = newConsoleLogger(w).Level(level)
}

// SetLevel parses debug, info, warn, error or trace (case-insensitive).
// Unknown names select info and return false.
func SetLevel(name string) bool {
	level, ok := ParseLevel(name)
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
	return ok
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(name string) (zerolog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zerolog.DebugLevel, true
	case "INFO", "":
		return zerolog.InfoLevel, true
	case "WARN":
		return zerolog.WarnLevel, true
	case "ERROR":
		return zerolog.ErrorLevel, true
	case "TRACE":
		return zerolog.TraceLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}
