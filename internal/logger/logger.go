package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns the CLI defaults: warnings only, on stderr
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:  "warn",
		Format: "console",
		Output: "stderr",
	}
}

// Setup initializes the global logger with the provided configuration
func Setup(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch config.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		output = file
	}

	if strings.ToLower(config.Format) != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return nil
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
