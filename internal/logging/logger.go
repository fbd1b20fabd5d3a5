// Package logging holds the process-wide charmbracelet logger. Until Init
// or InitWriter is called every helper is a no-op, so library code can log
// unconditionally.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// Logger is the global logger. Nil until initialized.
	Logger *log.Logger

	file *os.File
	path string
)

// DefaultDir is where Init writes when no directory is configured.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".lineup", "logs"), nil
}

// Init opens lineup-<date>.log under dir (DefaultDir when empty) and logs
// there at level.
func Init(dir, level string) error {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	p := filepath.Join(dir, "lineup-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if err := InitWriter(f, level); err != nil {
		f.Close()
		return err
	}
	file, path = f, p
	Logger.Info("lineup started", "pid", os.Getpid())
	return nil
}

// InitWriter logs to w at level ("info" when empty).
func InitWriter(w io.Writer, level string) error {
	lvl := log.InfoLevel
	if level != "" {
		var err error
		if lvl, err = log.ParseLevel(level); err != nil {
			return fmt.Errorf("log level %q: %w", level, err)
		}
	}
	Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	})
	return nil
}

// Path returns the file Init opened, or "" when logging elsewhere.
func Path() string { return path }

// Close flushes the shutdown line and closes the log file, if any.
func Close() {
	if Logger != nil {
		Logger.Info("lineup shutting down")
	}
	if file != nil {
		file.Close()
		file, path = nil, ""
	}
}

func Debug(msg string, keyvals ...any) { emit(log.DebugLevel, msg, keyvals) }
func Info(msg string, keyvals ...any)  { emit(log.InfoLevel, msg, keyvals) }
func Warn(msg string, keyvals ...any)  { emit(log.WarnLevel, msg, keyvals) }
func Error(msg string, keyvals ...any) { emit(log.ErrorLevel, msg, keyvals) }

func emit(lvl log.Level, msg string, keyvals []any) {
	if Logger == nil {
		return
	}
	Logger.Log(lvl, msg, keyvals...)
}
