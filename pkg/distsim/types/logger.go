package types

import "github.com/sirupsen/logrus"

// Logger is the logging contract used across every distsim component. A
// component accepts one at construction and falls back to the logrus-backed
// default when nil.
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
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
}

// logrusLogger adapts a *logrus.Entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds the default Logger, backed by logrus, tagging every
// line with the given component name.
func NewDefaultLogger(component string) Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: l.WithField("component", component)}
}

// WithLogrus wraps an existing *logrus.Logger, for callers that want a single
// shared logrus instance (and its formatter/output/hooks) across components.
func WithLogrus(l *logrus.Logger, component string) Logger {
	return &logrusLogger{entry: l.WithField("component", component)}
}

func (l *logrusLogger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{})                 { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{}) { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{})                { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}
func (l *logrusLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *logrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *logrusLogger) Fatal(v ...interface{})                 { l.entry.Fatal(v...) }
func (l *logrusLogger) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }
func (l *logrusLogger) Panic(v ...interface{})                 { l.entry.Panic(v...) }
func (l *logrusLogger) Panicf(format string, v ...interface{}) { l.entry.Panicf(format, v...) }

// OrDefault returns l if non-nil, otherwise a fresh default logger tagged
// with component.
func OrDefault(l Logger, component string) Logger {
	if l != nil {
		return l
	}
	return NewDefaultLogger(component)
}
