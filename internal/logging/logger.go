package logging

// Leveled logging for the driver and ljctl, backed by zap with optional
// rolling file output.

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel converts a config or flag value to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off", "none":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (lvl LogLevel) String() string {
	switch lvl {
	case LogLevelSilent:
		return "silent"
	case LogLevelError:
		return "error"
	case LogLevelVerbose:
		return "verbose"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// Options configures a Logger.
type Options struct {
	Level      LogLevel
	Format     string // "console" or "json"
	File       string // rolling log file, empty for none
	MaxSizeMB  int
	MaxBackups int
}

// Logger provides leveled logging
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	format string
	zl     *zap.Logger
	roller *lumberjack.Logger
}

// NewLogger creates a console logger that also writes to logFile when set.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(Options{Level: level, Format: "console", File: logFile})
}

// NewLoggerWithOptions creates a logger from opts.
func NewLoggerWithOptions(opts Options) (*Logger, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	l := &Logger{level: opts.Level, format: format}

	// Errors always reach stderr; lower levels only when verbose or debug.
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.LevelEnablerFunc(l.consoleEnabled)),
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		_ = f.Close()
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		l.roller = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(l.roller), zap.LevelEnablerFunc(l.fileEnabled)))
	}

	l.zl = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{level: LogLevelSilent, format: "console", zl: zap.NewNop()}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func (l *Logger) consoleEnabled(zl zapcore.Level) bool {
	lvl := l.GetLevel()
	if zl >= zapcore.ErrorLevel {
		return lvl >= LogLevelError
	}
	return lvl >= LogLevelVerbose
}

func (l *Logger) fileEnabled(zl zapcore.Level) bool {
	lvl := l.GetLevel()
	switch {
	case zl >= zapcore.ErrorLevel:
		return lvl >= LogLevelError
	case zl >= zapcore.InfoLevel:
		return lvl >= LogLevelInfo
	default:
		return lvl >= LogLevelVerbose
	}
}

// Zap exposes the underlying zap logger for structured call sites.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{level: l.level, format: l.format, zl: l.zl.With(fields...), roller: l.roller}
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zl.Sync()
	if l.roller != nil {
		return l.roller.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelError {
		l.zl.Error(fmt.Sprintf(format, v...))
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelInfo {
		l.zl.Info(fmt.Sprintf(format, v...))
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelVerbose {
		l.zl.Debug(fmt.Sprintf(format, v...), zap.String("detail", "verbose"))
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelDebug {
		l.zl.Debug(fmt.Sprintf(format, v...))
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogOperation logs one device operation.
func (l *Logger) LogOperation(operation, target string, success bool, rtt time.Duration, err error) {
	fields := []zap.Field{
		zap.String("op", operation),
		zap.String("target", target),
		zap.Bool("success", success),
		zap.Duration("rtt", rtt),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if success {
		if l.GetLevel() >= LogLevelVerbose {
			l.zl.Debug("operation", fields...)
		}
		return
	}
	if l.GetLevel() >= LogLevelInfo {
		l.zl.Info("operation failed", fields...)
	}
}

// LogHex logs frame bytes at debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() >= LogLevelDebug {
		l.Debug("%s: % x", label, data)
	}
}
