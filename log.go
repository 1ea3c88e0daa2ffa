package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/UnamanoDAO/AI-IELTS/internal/config"
)

var logFile *os.File

func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	log.SetTimeFormat("15:04:05")
	log.SetLevel(log.InfoLevel)

	return func() error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	}, nil
}

// enableDebugLog switches to debug level and copies the log to a file in
// the user data directory.
func enableDebugLog() error {
	log.SetLevel(log.DebugLevel)
	log.SetReportCaller(true)

	path, err := config.LogFile()
	if err != nil {
		return fmt.Errorf("unable to resolve log file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.Debug("debug logging enabled", "file", path)
	return nil
}
