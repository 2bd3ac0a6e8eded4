package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config controls basic logger behaviour.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	File   string // optional, written in addition to stdout
}

// Setup configures the standard logrus logger and returns a func that closes the
// log file, if any.
func Setup(cfg Config) (func() error, error) {
	return SetupWriter(cfg, os.Stdout)
}

// SetupWriter is Setup with console output sent to out instead of stdout.
func SetupWriter(cfg Config, out io.Writer) (func() error, error) {
	return configure(log.StandardLogger(), cfg, out)
}

// New builds a separate logger, mostly for tests and tools.
func New(cfg Config, out io.Writer) (*log.Logger, func() error, error) {
	logger := log.New()
	closer, err := configure(logger, cfg, out)
	if err != nil {
		return nil, nil, err
	}
	return logger, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func configure(logger *log.Logger, cfg Config, out io.Writer) (func() error, error) {
	logger.SetLevel(parseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(out)
		return func() error { return nil }, nil
	}

	if dir := filepath.Dir(cfg.File); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	logger.SetOutput(io.MultiWriter(out, f))
	return f.Close, nil
}

func parseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}
