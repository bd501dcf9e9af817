// Package logging builds the structured logger shared by the engine, the
// store and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls log level and output format.
type Config struct {
	// Level is a logrus level name: trace, debug, info, warn, error.
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`

	// Format selects the formatter.
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`

	// ReportCaller adds the calling function and file to each entry.
	ReportCaller bool `yaml:"report_caller" json:"report_caller"`
}

// DefaultConfig returns info-level text logging.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// New builds a logger writing to out. A nil out writes to stderr so that
// stdout stays free for command output.
func New(cfg Config, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	log := &logrus.Logger{
		Out:          out,
		Hooks:        make(logrus.LevelHooks),
		Formatter:    formatter,
		ReportCaller: cfg.ReportCaller,
		Level:        level,
		ExitFunc:     os.Exit,
	}
	return log, nil
}
