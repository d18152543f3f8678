package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	format "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"

	"firestige.xyz/pktt/internal/config"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// New builds a logger from cfg writing to stderr and, when enabled, a
// rotating file.
func New(cfg config.LogConfig) (Logger, error) {
	out := NewMultiWriter().Add(os.Stderr)
	if cfg.Outputs.File.Enabled {
		if cfg.Outputs.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(cfg.Outputs.File)
	}
	return NewWithWriter(cfg, out)
}

// NewWithWriter builds a logger from cfg writing only to w.
func NewWithWriter(cfg config.LogConfig, w io.Writer) (Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	f, err := newFormatter(cfg)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetFormatter(f)
	l.SetLevel(level)
	l.SetOutput(w)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

func newFormatter(cfg config.LogConfig) (logrus.Formatter, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = config.DefaultLogTimeFormat
	}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = config.DefaultLogPattern
		}
		return &formatter{pattern: pattern, time: timeFormat}, nil
	case "nested":
		return &format.Formatter{
			HideKeys:        false,
			TimestampFormat: time.RFC3339,
			FieldsOrder:     []string{"frame", "layer", "xid"},
		}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: timeFormat}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be text, nested or json)", cfg.Format)
	}
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
