package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/sdrgain/pkg/config"
	"gopkg.in/lumberjack.v2"
)

// Level is a log severity
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a Level, defaulting to info
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields are extra key/value pairs attached to a record
type Fields map[string]interface{}

// Logger writes component-tagged records to the console and an optional
// rotating file. It is safe for concurrent use.
type Logger struct {
	level      atomic.Int32
	structured bool

	mu      sync.Mutex
	outputs []io.Writer
	rotator *lumberjack.Logger

	now func() time.Time
}

// NewLogger builds a logger from the logging section of the configuration
func NewLogger(cfg *config.Config) (*Logger, error) {
	l := &Logger{structured: cfg.Logging.Structured, now: time.Now}
	l.level.Store(int32(ParseLevel(cfg.Logging.Level)))

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.rotator = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSize, // megabytes
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge, // days
			Compress:   cfg.Logging.Compress,
		}
		l.outputs = append(l.outputs, l.rotator)
	}

	if cfg.Logging.Console || l.rotator == nil {
		l.outputs = append(l.outputs, os.Stdout)
	}

	return l, nil
}

// NewWriterLogger returns a logger that writes only to w
func NewWriterLogger(w io.Writer, level Level, structured bool) *Logger {
	l := &Logger{structured: structured, outputs: []io.Writer{w}, now: time.Now}
	l.level.Store(int32(level))
	return l
}

// Close flushes and closes the rotating file, if any
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// SetLevel changes the minimum level at runtime
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level reports the current minimum level
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether records at level would be written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) format(level Level, component, message string, fields Fields) string {
	timestamp := l.now().Format("2006-01-02 15:04:05.000")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if l.structured {
		var b strings.Builder
		fmt.Fprintf(&b, `{"time":%q,"level":%q,"component":%q,"message":%q`,
			timestamp, level.String(), component, message)
		for _, k := range keys {
			fmt.Fprintf(&b, ",%q:%q", k, fmt.Sprint(fields[k]))
		}
		b.WriteByte('}')
		return b.String()
	}

	line := fmt.Sprintf("%s [%s] %s: %s", timestamp, level.String(), component, message)
	if len(keys) > 0 {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		line += " [" + strings.Join(parts, " ") + "]"
	}
	return line
}

func (l *Logger) log(level Level, component, message string, fields Fields) {
	if !l.Enabled(level) {
		return
	}
	line := l.format(level, component, message, fields) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.outputs {
		io.WriteString(w, line)
	}
}

func first(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func (l *Logger) Debug(component, message string, fields ...Fields) {
	l.log(LevelDebug, component, message, first(fields))
}

func (l *Logger) Info(component, message string, fields ...Fields) {
	l.log(LevelInfo, component, message, first(fields))
}

func (l *Logger) Warn(component, message string, fields ...Fields) {
	l.log(LevelWarn, component, message, first(fields))
}

func (l *Logger) Error(component, message string, fields ...Fields) {
	l.log(LevelError, component, message, first(fields))
}

func (l *Logger) Debugf(component, format string, args ...interface{}) {
	if l.Enabled(LevelDebug) {
		l.log(LevelDebug, component, fmt.Sprintf(format, args...), nil)
	}
}

func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.log(LevelInfo, component, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.log(LevelWarn, component, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.log(LevelError, component, fmt.Sprintf(format, args...), nil)
}

var global atomic.Pointer[Logger]

var fallback = sync.OnceValue(func() *Logger {
	return NewWriterLogger(os.Stdout, LevelInfo, false)
})

// InitGlobalLogger installs the process-wide logger
func InitGlobalLogger(cfg *config.Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetGlobalLogger(logger)
	return nil
}

// SetGlobalLogger replaces the process-wide logger
func SetGlobalLogger(l *Logger) {
	global.Store(l)
}

// GetGlobalLogger returns the process-wide logger, falling back to an
// info-level console logger before InitGlobalLogger runs.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return fallback()
}

// CloseGlobalLogger closes the process-wide logger
func CloseGlobalLogger() error {
	if l := global.Load(); l != nil {
		return l.Close()
	}
	return nil
}

// Package level helpers that write through the global logger

func Debug(component, message string, fields ...Fields) {
	GetGlobalLogger().Debug(component, message, fields...)
}

func Info(component, message string, fields ...Fields) {
	GetGlobalLogger().Info(component, message, fields...)
}

func Warn(component, message string, fields ...Fields) {
	GetGlobalLogger().Warn(component, message, fields...)
}

func Error(component, message string, fields ...Fields) {
	GetGlobalLogger().Error(component, message, fields...)
}

func Debugf(component, format string, args ...interface{}) {
	GetGlobalLogger().Debugf(component, format, args...)
}

func Infof(component, format string, args ...interface{}) {
	GetGlobalLogger().Infof(component, format, args...)
}

func Warnf(component, format string, args ...interface{}) {
	GetGlobalLogger().Warnf(component, format, args...)
}

func Errorf(component, format string, args ...interface{}) {
	GetGlobalLogger().Errorf(component, format, args...)
}
