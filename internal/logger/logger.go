package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type DebugLevel = zerolog.Level

const (
	Debug = zerolog.DebugLevel
	Info  = zerolog.InfoLevel
	Warn  = zerolog.WarnLevel
	Error = zerolog.ErrorLevel
	Quiet = zerolog.Disabled
)

type Config struct {
	// ConsoleWriters receive human readable output. Defaults to stderr when
	// neither writers nor a file path are given.
	ConsoleWriters []io.Writer
	// FilePath, if set, receives JSON lines rotated by size.
	FilePath string
	LogLevel DebugLevel
}

// Logger is a thin wrapper around zerolog. A nil *Logger discards everything.
type Logger struct {
	logger zerolog.Logger
	closer io.Closer
}

func New(config *Config) (*Logger, error) {
	if config == nil {
		config = &Config{LogLevel: Info}
	}

	var writers []io.Writer
	for _, w := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"})
	}

	var closer io.Closer
	if config.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(config.LogLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: zl, closer: closer}, nil
}

// ToLogLevel maps a config string to a level, defaulting to info.
func ToLogLevel(level string) DebugLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "quiet", "off", "disabled":
		return Quiet
	default:
		return Info
	}
}

// With returns a sub-logger tagged with the component name.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField returns a sub-logger carrying an extra key/value pair.
func (l *Logger) WithField(key, value string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Str(key, value).Logger()}
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) Debug(msg string) {
	if l != nil {
		l.logger.Debug().Msg(msg)
	}
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.Debug(fmt.Sprintf(format, a...))
}

func (l *Logger) Info(msg string) {
	if l != nil {
		l.logger.Info().Msg(msg)
	}
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.Info(fmt.Sprintf(format, a...))
}

func (l *Logger) Warn(msg string) {
	if l != nil {
		l.logger.Warn().Msg(msg)
	}
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.Warn(fmt.Sprintf(format, a...))
}

func (l *Logger) Error(err error) {
	if l != nil && err != nil {
		l.logger.Error().Msg(err.Error())
	}
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if l != nil {
		l.logger.Error().Msg(fmt.Sprintf(format, a...))
	}
}
