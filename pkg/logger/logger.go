package logger

import (
	"io"
	"os"
	"strings"

	"wazmeow/internal/app/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger with additional functionality
type Logger struct {
	*zerolog.Logger
	config config.LoggingConfig
}

// New creates a new logger instance with the given configuration. When
// cfg.File is set, output is also written to a rotating log file.
func New(cfg config.LoggingConfig) *Logger {
	return newWithOutput(cfg, os.Stdout)
}

func newWithOutput(cfg config.LoggingConfig, out io.Writer) *Logger {
	zerolog.SetGlobalLevel(parseLogLevel(cfg.Level))

	var console io.Writer = out
	if strings.ToLower(cfg.Format) != "json" {
		writer := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
			NoColor:    !cfg.ColorOutput,
		}
		if cfg.ColorOutput {
			writer.FormatLevel = formatLevel
		}
		console = writer
	}

	output := console
	if cfg.File != "" {
		// The file always receives JSON lines.
		output = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "wazmeow").Logger()
	return &Logger{
		Logger: &logger,
		config: cfg,
	}
}

func formatLevel(i interface{}) string {
	if i == nil {
		return ""
	}
	lvl := strings.ToUpper(i.(string))
	switch lvl {
	case "DEBUG":
		return "\x1b[34m" + lvl + "\x1b[0m"
	case "INFO":
		return "\x1b[32m" + lvl + "\x1b[0m"
	case "WARN":
		return "\x1b[33m" + lvl + "\x1b[0m"
	case "ERROR", "FATAL", "PANIC":
		return "\x1b[31m" + lvl + "\x1b[0m"
	default:
		return lvl
	}
}

// NewFromAppConfig creates a logger from app configuration
func NewFromAppConfig(appConfig *config.Config) *Logger {
	return New(appConfig.Logging)
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	log.Logger = *logger.Logger
}

// WithComponent creates a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	newLogger := l.Logger.With().Str("component", component).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// WithSessionID creates a logger with a session ID field
func (l *Logger) WithSessionID(sessionID string) *Logger {
	newLogger := l.Logger.With().Str("session_id", sessionID).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// GetConfig returns the current logger configuration
func (l *Logger) GetConfig() config.LoggingConfig {
	return l.config
}

// parseLogLevel converts string level to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
