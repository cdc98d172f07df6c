// Package logger provides structured logging with request-scoped context
// fields (trace id, codebase, campaign) shared by every janitor component.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried by this package.
type ContextKey string

const (
	TraceIDKey  ContextKey = "trace_id"
	CodebaseKey ContextKey = "codebase"
	CampaignKey ContextKey = "campaign"
)

// Config controls logger construction.
type Config struct {
	Service string
	Level   string
	Format  string // "json" or "text"
	Output  io.Writer
}

// Logger wraps a logrus.Logger, tagging every entry with the owning
// component's name. Callers thread an explicit *Logger through
// constructors rather than reaching for a package-level global.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger from an explicit Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l, service: cfg.Service}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(Config{Service: service, Level: level, Format: format})
}

// WithContext returns a log entry tagged with the service name and any
// trace/codebase/campaign values carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(CodebaseKey); v != nil {
		entry = entry.WithField("codebase", v)
	}
	if v := ctx.Value(CampaignKey); v != nil {
		entry = entry.WithField("campaign", v)
	}
	return entry
}

// WithFields returns a log entry tagged with the service name and the
// given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns a log entry tagged with the service name and err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service}).WithError(err)
}

// NewTraceID returns a fresh random trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithCodebase attaches a codebase name to ctx.
func WithCodebase(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, CodebaseKey, name)
}

// WithCampaign attaches a campaign name to ctx.
func WithCampaign(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, CampaignKey, name)
}

// GetTraceID retrieves the trace id from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogSweep logs a completed reconciliation or scheduling sweep.
func (l *Logger) LogSweep(ctx context.Context, name string, processed int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"sweep":       name,
		"processed":   processed,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("sweep failed")
		return
	}
	entry.Info("sweep complete")
}

// FormatDuration renders d as a fixed-precision millisecond string, used in
// places where logrus fields would be noisier than a plain message.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
