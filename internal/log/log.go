// Package log provides the process logger, a logrus backed Logger
// interface configured from config.LogConfig.
package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/pktt/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = Discard()
)

// GetLogger returns the process logger. Before Init it discards everything.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init builds the process logger from cfg. Calling it again replaces the
// previous logger.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// Discard returns a logger that drops every entry.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
