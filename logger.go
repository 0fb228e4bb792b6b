package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var logger = NewLogger()

// Logger writes tagged messages. The terminal belongs to the renderer,
// so output goes to a file or nowhere.
type Logger struct {
	base *logrus.Logger
	file afero.File
}

func NewLogger() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.InfoLevel)
	return &Logger{base: base}
}

// Setup configures the logger from the logs.* keys
func (l *Logger) Setup() error {
	if !viper.GetBool(keyLogsWrite) {
		l.base.SetOutput(io.Discard)
		return nil
	}

	dir := viper.GetString(keyLogsPath)
	if err := filesystem().MkdirAll(dir, 0o755); err != nil {
		return tagErr("logger", fmt.Errorf("create log directory: %w", err))
	}

	name := fmt.Sprintf("%s-%s.log", appName, time.Now().Format("2006-01-02"))
	f, err := filesystem().OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return tagErr("logger", fmt.Errorf("open log file: %w", err))
	}
	l.Close()
	l.file = f
	l.base.SetOutput(f)

	if viper.GetBool(keyLogsJSON) {
		l.base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(viper.GetString(keyLogsLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.base.SetLevel(level)
	return nil
}

func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

func (l *Logger) SetLevel(level logrus.Level) {
	l.base.SetLevel(level)
}

// With returns an entry carrying the component tag, for callers that add fields
func (l *Logger) With(tag string) *logrus.Entry {
	return l.base.WithField("component", tag)
}

// Log a debug message with format specifiers
func (l *Logger) Debug(tag string, format string, v ...any) {
	l.With(tag).Debugf(format, v...)
}

// Log an info message with format specifiers
func (l *Logger) Info(tag string, format string, v ...any) {
	l.With(tag).Infof(format, v...)
}

func (l *Logger) Warn(tag string, format string, v ...any) {
	l.With(tag).Warnf(format, v...)
}

// Log an error message with format specifiers
func (l *Logger) Error(tag string, format string, v ...any) {
	l.With(tag).Errorf(format, v...)
}

func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
