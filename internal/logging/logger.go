package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"salonbook/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process-wide zerolog logger from the logging section of the
// config. Every record carries the app name, environment and version so logs
// from several deployments can be mixed in one stream. With empty settings
// the logger writes JSON at info level to stdout.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	output, closer, err := openWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	if normalize(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(normalize(cfg.Level)); err == nil {
		level = parsed
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &base, closer, nil
}

// Component derives a sub-logger tagged with the component name.
func Component(base *zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

func openWriter(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch normalize(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return file, file, nil
	default:
		return os.Stdout, nil, nil
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
