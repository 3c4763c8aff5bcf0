// Package logging provides structured logging with trace ID support, shared
// by every component of the computed-attribute engine.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to thread request-scoped
// identifiers through a context.Context.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	TargetIDKey ContextKey = "target_id"
)

// Logger wraps logrus.Logger with a fixed component name and trace-aware
// helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component name, level ("debug", "info",
// "warn", "error") and format ("json" or "text").
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// "info"/"json" when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// Noop returns a Logger that discards everything, for components constructed
// without an explicit logger.
func Noop() *Logger {
	l := New("noop", "error", "text")
	l.SetOutput(nil)
	return l
}

// SetOutput silently ignores a nil writer (used by Noop) and otherwise
// delegates to logrus.
func (l *Logger) SetOutput(w interface{ Write([]byte) (int, error) }) {
	if w == nil {
		l.Logger.SetOutput(discard{})
		return
	}
	l.Logger.SetOutput(w)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// WithContext returns a logrus.Entry carrying the component name and any
// trace/target IDs found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if targetID := ctx.Value(TargetIDKey); targetID != nil {
		entry = entry.WithField("target_id", targetID)
	}
	return entry
}

// WithFields returns a logrus.Entry carrying the component name and the
// given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns a logrus.Entry carrying the component name and an error
// field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithTargetID attaches the target ID of an in-flight computation to ctx.
func WithTargetID(ctx context.Context, targetID string) context.Context {
	return context.WithValue(ctx, TargetIDKey, targetID)
}

// LogComputation logs the outcome of an attribute computation.
func (l *Logger) LogComputation(ctx context.Context, attributeID, targetID string, d time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"attribute_id": attributeID,
		"target_id":    targetID,
		"duration_ms":  d.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("attribute computation failed")
		return
	}
	entry.Debug("attribute computed")
}

// LogInvalidation logs the outcome of an invalidation request.
func (l *Logger) LogInvalidation(ctx context.Context, axis string, count int, d time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"axis":        axis,
		"count":       count,
		"duration_ms": d.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("invalidation failed")
		return
	}
	entry.Info("invalidation applied")
}

// LogCacheEvent logs a cache lifecycle event (hit, miss, set, evicted, …).
func (l *Logger) LogCacheEvent(ctx context.Context, event, key string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"event": event,
		"key":   key,
	}).Debug("cache event")
}
