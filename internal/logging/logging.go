// Package logging wraps logrus behind a small helper: a thin struct
// carrying accumulated context
// fields so every device/plugin/transport call logs with consistent
// {device_id, plugin, subsystem} attribution.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger is a structured logger with accumulated context fields.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger writing text-formatted entries to the default
// logrus output.
func New() *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(l)}
}

// WithField returns a derived Logger carrying an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a derived Logger carrying additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// Debug logs at debug level.
func (l *Logger) Debug(args ...any) { l.entry.Debug(args...) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

// Info logs at info level.
func (l *Logger) Info(args ...any) { l.entry.Info(args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(args ...any) { l.entry.Warn(args...) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

// Error logs at error level.
func (l *Logger) Error(args ...any) { l.entry.Error(args...) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Dump logs buf as a debug-level hex dump under title, 16 bytes per
// line. Emitted only when debug logging is enabled, since firmware
// payloads make for large dumps.
func (l *Logger) Dump(title string, buf []byte) {
	if !l.entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	l.entry.Debugf("%s: %d bytes", title, len(buf))

	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}

		l.entry.Debugf("%s: 0x%04x: % x", title, off, buf[off:end])
	}
}
