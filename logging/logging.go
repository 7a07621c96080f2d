// Package logging provides the structured logging foundation shared by every
// component of the engine: output stream routing, PII masking, and
// context-carrying loggers built on logrus.
package logging

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level log lines to stderr and everything else
// to stdout, so container log collectors can treat the two streams
// differently without parsing structured fields.
type OutputSplitter struct{}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logrus instance. Components that need request
// or document scoping should wrap it with New or NewContext rather than log
// through it directly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.AddHook(&maskingHook{})
}

// Level mirrors logrus levels without forcing every caller to import logrus
// directly.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures a logger instance.
type Config struct {
	Level  Level
	Format string // "json" or "text"
}

// New builds a standalone logger with the OutputSplitter and PII masking
// hook attached. Used by tests and by any component that needs a logger
// independent of the global one.
func New(cfg Config) *logrus.Logger {
	l := logrus.New()
	switch cfg.Level {
	case LevelDebug:
		l.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		l.SetLevel(logrus.WarnLevel)
	case LevelError:
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	l.SetOutput(&OutputSplitter{})
	l.AddHook(&maskingHook{})
	return l
}

// Configure applies level/format settings to the global Logger, used once at
// startup after config is resolved.
func Configure(cfg Config) {
	switch cfg.Level {
	case LevelDebug:
		Logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		Logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.Format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
}
