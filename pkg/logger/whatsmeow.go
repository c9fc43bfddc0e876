package logger

import (
	"fmt"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger routes whatsmeow's internal logging into zerolog.
type waLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

var _ waLog.Logger = (*waLogger)(nil)

// WhatsApp returns a whatsmeow logger for module. level uses whatsmeow's
// names (DEBUG, INFO, WARN, ERROR); debug forces DEBUG.
func (l *Logger) WhatsApp(module, level string, debug bool) waLog.Logger {
	if debug {
		level = "DEBUG"
	}
	return &waLogger{
		log:   l.Logger.With().Str("component", "whatsmeow").Str("module", module).Logger(),
		level: parseLogLevel(level),
	}
}

func (w *waLogger) emit(level zerolog.Level, msg string, args []interface{}) {
	if level < w.level {
		return
	}
	w.log.WithLevel(level).Msg(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Errorf(msg string, args ...interface{}) { w.emit(zerolog.ErrorLevel, msg, args) }
func (w *waLogger) Warnf(msg string, args ...interface{})  { w.emit(zerolog.WarnLevel, msg, args) }
func (w *waLogger) Infof(msg string, args ...interface{})  { w.emit(zerolog.InfoLevel, msg, args) }
func (w *waLogger) Debugf(msg string, args ...interface{}) { w.emit(zerolog.DebugLevel, msg, args) }

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{
		log:   w.log.With().Str("sub", module).Logger(),
		level: w.level,
	}
}
