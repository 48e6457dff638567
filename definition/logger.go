// Package definition holds the small declarative interfaces every component
// of the process runtime is handed at construction time: the logger.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every runtime component depends on. The
// shape matches the teacher-style hand rolled logger so existing call sites
// (Debugf for routine traffic, Warnf/Errorf for background failures that
// must never be raised into application code) read the same regardless of
// which implementation backs them.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	// ToggleDebug turns debug-level logging on or off and returns the new
	// state.
	ToggleDebug(value bool) bool
}

// DefaultLogger is the Logger used when a context isn't given one of its
// own. It wraps a logrus.Logger instead of the bare standard library
// logger, so a field added to every entry (the process id, say) can ride
// along as structured data instead of being string-formatted in.
type DefaultLogger struct {
	entry *logrus.Entry
	level *logrus.Logger
}

// NewDefaultLogger builds a DefaultLogger that writes to stderr with debug
// logging disabled.
func NewDefaultLogger(name string) *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{
		entry: l.WithField("process", name),
		level: l,
	}
}

func (d *DefaultLogger) Info(v ...interface{})                 { d.entry.Info(v...) }
func (d *DefaultLogger) Infof(format string, v ...interface{})  { d.entry.Infof(format, v...) }
func (d *DefaultLogger) Warn(v ...interface{})                  { d.entry.Warn(v...) }
func (d *DefaultLogger) Warnf(format string, v ...interface{})  { d.entry.Warnf(format, v...) }
func (d *DefaultLogger) Error(v ...interface{})                 { d.entry.Error(v...) }
func (d *DefaultLogger) Errorf(format string, v ...interface{}) { d.entry.Errorf(format, v...) }
func (d *DefaultLogger) Debug(v ...interface{})                 { d.entry.Debug(v...) }
func (d *DefaultLogger) Debugf(format string, v ...interface{}) { d.entry.Debugf(format, v...) }
func (d *DefaultLogger) Fatal(v ...interface{})                 { d.entry.Fatal(v...) }
func (d *DefaultLogger) Fatalf(format string, v ...interface{}) { d.entry.Fatalf(format, v...) }

func (d *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		d.level.SetLevel(logrus.DebugLevel)
	} else {
		d.level.SetLevel(logrus.InfoLevel)
	}
	return value
}
