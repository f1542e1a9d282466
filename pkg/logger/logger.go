package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/zfogg/photostream/cli/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *log.Logger
var rotator *lumberjack.Logger

// console mirrors warnings and errors to stderr while logger writes to the
// rotated file
var console *log.Logger
var stderr io.Writer = os.Stderr

// Init initializes the logger
func Init(verbose bool) {
	logLevel := parseLevel(config.GetString("log.level"))
	if verbose {
		logLevel = log.DebugLevel
	}

	console = nil
	var out = stderr
	if logFile := config.GetString("log.file"); logFile != "" {
		rotator = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		out = rotator

		console = log.NewWithOptions(stderr, log.Options{Prefix: "photostream"})
		if verbose {
			console.SetLevel(log.DebugLevel)
		} else {
			console.SetLevel(max(logLevel, log.WarnLevel))
		}
	}

	logger = log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Prefix:          "photostream",
	})
	logger.SetLevel(logLevel)
}

// InitWriter points the logger at w, for tests and embedding
func InitWriter(w io.Writer, level log.Level) {
	logger = log.New(w)
	logger.SetLevel(level)
	console = nil
}

// Close flushes and closes the rotated log file
func Close() error {
	if rotator != nil {
		err := rotator.Close()
		rotator = nil
		return err
	}
	return nil
}

func parseLevel(levelStr string) log.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
	if console != nil {
		console.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
	if console != nil {
		console.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
	if console != nil {
		console.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
	if console != nil {
		console.Error(msg, args...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...interface{}) {
	if logger != nil {
		logger.Fatal(msg, args...)
	} else {
		os.Exit(1)
	}
}

// GetLogger returns the logger instance
func GetLogger() *log.Logger {
	return logger
}
