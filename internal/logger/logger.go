// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const service = "aggregator-service"

// New returns a JSON logger writing to stdout at level.
func New(level string) (*logrus.Logger, error) {
	return NewWithOutput(level, os.Stdout)
}

// NewWithOutput is New with a custom destination.
func NewWithOutput(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(out)
	l.SetLevel(lvl)
	return l, nil
}

// Service tags every entry with the service name.
func Service(l *logrus.Logger) logrus.FieldLogger {
	return l.WithField("service", service)
}
