// Package logger provides the structured, leveled logging used by every
// component of the content-management core. It wraps hclog so call sites
// pass native key/value pairs instead of format strings.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.Mutex
	root hclog.Logger
)

func instance() hclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = hclog.New(&hclog.LoggerOptions{
			Name:            "cdscore",
			Level:           levelFromEnv(),
			Output:          os.Stderr,
			IncludeLocation: false,
		})
	}
	return root
}

func levelFromEnv() hclog.Level {
	switch os.Getenv("CDSCORE_LOG_LEVEL") {
	case "debug":
		return hclog.Debug
	case "warn":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

func parseLevel(level string) hclog.Level {
	switch level {
	case "debug":
		return hclog.Debug
	case "warn":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

// SetLevel changes the root logger's level, e.g. from a loaded Config.
func SetLevel(level string) {
	instance().SetLevel(parseLevel(level))
}

// Named returns a sub-logger tagged with component, the way the worker,
// the rescan engine, and the event watcher identify their own log lines.
func Named(component string) hclog.Logger {
	return instance().Named(component)
}

// Info logs an informational message with structured key/value pairs.
func Info(msg string, kv ...interface{}) { instance().Info(msg, kv...) }

// Warn logs a warning message with structured key/value pairs.
func Warn(msg string, kv ...interface{}) { instance().Warn(msg, kv...) }

// Error logs an error message with structured key/value pairs.
func Error(msg string, kv ...interface{}) { instance().Error(msg, kv...) }

// Debug logs a debug message with structured key/value pairs.
func Debug(msg string, kv ...interface{}) { instance().Debug(msg, kv...) }
