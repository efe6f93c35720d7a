package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects level and sinks. File output is rotated by lumberjack.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

var sink io.Writer = os.Stdout

// ConfigureLogging installs the process-wide log sink. Loggers created
// afterwards write to it.
func ConfigureLogging(cfg LogConfig) io.Closer {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console || cfg.File == "" {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rotator)
		closer = rotator
	}
	if len(writers) == 1 {
		sink = writers[0]
	} else {
		sink = zerolog.MultiLevelWriter(writers...)
	}
	if cfg.Level != "" {
		zerolog.SetGlobalLevel(parseLogLevel(cfg.Level))
	}
	return closer
}

// NewLogger creates a structured JSON logger tagged with component.
// Level defaults to info; NSWAP_LOG_LEVEL overrides it.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerWithLevel(component, parseLogLevel(os.Getenv("NSWAP_LOG_LEVEL")))
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(sink).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
