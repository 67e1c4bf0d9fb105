// Package logging builds the logrus logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/domain"
)

// NewLogger creates a logger from the logging configuration. The returned
// close function releases the log file when output is "file".
func NewLogger(config domain.LoggingConfig) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(config.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	closeFn := func() error { return nil }
	var out io.Writer
	switch strings.ToLower(config.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		if config.Filename == "" {
			return nil, nil, fmt.Errorf("log filename is required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	default:
		return nil, nil, fmt.Errorf("unknown log output: %q", config.Output)
	}
	logger.SetOutput(out)

	return logger, closeFn, nil
}

// Discard returns a logger that drops everything, for tests and tools that
// must keep stdout clean.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
