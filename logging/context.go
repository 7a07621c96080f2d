package logging

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextLogger carries a fixed set of structured fields (correlation_id,
// document_id, component, ...) through a call chain without threading a
// logrus.Entry by hand.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContext creates a context-scoped logger. A nil logger falls back to the
// global Logger.
func NewContext(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	f := make(logrus.Fields, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &ContextLogger{logger: logger, fields: f}
}

// ForComponent is a convenience constructor used at the top of a component's
// constructor to stamp every subsequent log line with its name.
func ForComponent(component string) *ContextLogger {
	return NewContext(Logger, map[string]interface{}{"component": component})
}

func (cl *ContextLogger) clone(extra logrus.Fields) *ContextLogger {
	f := make(logrus.Fields, len(cl.fields)+len(extra))
	for k, v := range cl.fields {
		f[k] = v
	}
	for k, v := range extra {
		f[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: f}
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.clone(logrus.Fields{key: value})
}

func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	f := make(logrus.Fields, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return cl.clone(f)
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	if err == nil {
		return cl
	}
	return cl.clone(logrus.Fields{"error": err.Error()})
}

// WithCorrelationID stamps the correlation ID that ties every log line for a
// document's journey together (see ids.NewCorrelationID).
func (cl *ContextLogger) WithCorrelationID(cid string) *ContextLogger {
	return cl.WithField("correlation_id", cid)
}

// WithDocument stamps the document ID under processing.
func (cl *ContextLogger) WithDocument(docID string) *ContextLogger {
	return cl.WithField("document_id", docID)
}

// FromContext extracts a correlation ID placed on ctx (if any) and attaches
// it as a field.
func (cl *ContextLogger) FromContext(ctx context.Context) *ContextLogger {
	if ctx == nil {
		return cl
	}
	if cid, ok := ctx.Value(correlationIDKey{}).(string); ok && cid != "" {
		return cl.WithCorrelationID(cid)
	}
	return cl
}

type correlationIDKey struct{}

// WithContextValue returns a context carrying the correlation ID so it can
// be picked back up by FromContext at a different call site.
func WithContextValue(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// LogOperation logs the start/end of fn with duration and outcome.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Debug("operation started")

	err := fn()

	entry := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Debug("operation completed")
	return nil
}

// LogPanic recovers a panic and logs it with a stack trace. It only takes
// effect when deferred directly in the goroutine that panics.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
