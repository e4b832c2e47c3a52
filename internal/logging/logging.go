// Package logging builds the logrus logger shared by the CLI and its
// subsystems.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zulandar/jobvalidator/internal/config"
)

// New builds a logger from cfg writing to out. When cfg.File is set, output
// is also written to a size-rotated file.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: level %q: %w", cfg.Level, err)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(formatter(cfg.Format, out))

	if cfg.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	log.SetOutput(out)
	return log, nil
}

// formatter picks text for interactive terminals and JSON otherwise when
// format is "auto".
func formatter(format string, out io.Writer) logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
}

// Discard returns a logger that drops everything. Packages fall back to it
// when the caller passes nil.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard returns l, or a discard logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}
