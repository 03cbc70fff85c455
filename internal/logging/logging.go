package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stdout)
}

func NewWithOutput(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// LogError writes err with the module, operation and an optional payload.
func LogError(logger logrus.FieldLogger, module string, op string, message string, data any, err error) {
	fields := logrus.Fields{
		"module":  module,
		"op":      op,
		"context": message,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

// Discard is a logger for tests.
func Discard() *logrus.Logger {
	return NewWithOutput("panic", io.Discard)
}
