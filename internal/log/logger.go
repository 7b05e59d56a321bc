// SPDX-License-Identifier: EPL-2.0

// Package log holds the process-wide structured logger.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured fields.
type Fields = logrus.Fields

// Logger is replaced by Init. Until then it logs text at info level to
// stderr so packages used as a library still produce output.
var Logger = newLogger(os.Stderr, "info", "text")

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)
	return l
}

// Init configures the logger. format is "json" or "text"; an unknown level
// falls back to info.
func Init(level, format string) {
	Logger = newLogger(os.Stdout, level, format)
}

// SetOutput redirects the logger, mainly for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// WithField starts an entry carrying one structured field.
func WithField(key string, value any) *logrus.Entry {
	return Logger.WithField(key, value)
}

func WithFields(fields Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func Debugf(format string, args ...any) {
	Logger.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	Logger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	Logger.Errorf(format, args...)
}

// Fatalf logs at fatal level and exits the process.
func Fatalf(format string, args ...any) {
	Logger.Fatalf(format, args...)
}
