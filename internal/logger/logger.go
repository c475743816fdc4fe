// Package logger provides leveled structured logging for the whole process.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures optional rotating file output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init initializes the package logger with the specified level and format.
// Format "text" uses a human-readable console writer, anything else emits JSON.
// A non-nil file config adds a rotating file sink alongside stderr.
func Init(level string, format string, file *FileConfig) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if file != nil && file.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
		}
		out = io.MultiWriter(out, rotated)
	}

	log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Debug(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	log.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	log.Fatal().Msgf(format, args...)
}
