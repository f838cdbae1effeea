// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Options mirrors the log section of the config file.
type Options struct {
	Level  string
	Format string
	File   string
}

// Init sets level, formatter and outputs. Logs always go to stdout and, when
// File is set, are appended to that file as well.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	writers := []io.Writer{os.Stdout}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		writers = append(writers, f)
	}
	logrus.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close releases the log file, if any, and points the logger back at stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	logrus.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// For returns a logger tagged with the given component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
