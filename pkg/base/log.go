// Package base provides a thin structured-logging wrapper around logrus,
// adapted from pkg/pillar/base.LogObject for a single in-process engine
// rather than a fleet of cloud-reporting agents.
package base

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger with a persistent field set (domid, path,
// opcode, ...) that gets attached to every line it emits.
type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewLogger creates a Logger writing through the given logrus.Logger.
func NewLogger(logger *logrus.Logger) *Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Logger{logger: logger, fields: logrus.Fields{}}
}

// With returns a derived Logger with additional fields merged in.
func (l *Logger) With(fields logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{logger: l.logger, fields: merged}
}

func (l *Logger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

// Fatalf logs at fatal level and exits the process.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.entry().Fatalf(format, args...)
}

// Tracef logs at trace level; used for the high-volume ring/dispatch
// chatter that would otherwise flood debug level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.entry().Tracef(format, args...)
}

// Functionf logs at debug level to mark entry/exit of a notable internal
// function, matching the pkg/pillar convention of the same name.
func (l *Logger) Functionf(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}
