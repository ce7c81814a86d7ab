package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity attached to a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) prefix() string {
	switch l {
	case LevelDebug:
		return "[DEBUG]"
	case LevelWarn:
		return "[WARN]"
	case LevelError:
		return "[ERROR]"
	default:
		return "[INFO]"
	}
}

// ParseLevel maps a config string to a Level. Unknown values become LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Options configures a Logger.
type Options struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Level      Level
	// Console receives a copy of every line. Defaults to os.Stdout.
	Console io.Writer
}

// Logger writes leveled lines to the console and, optionally, a rotating file.
type Logger struct {
	mu       sync.RWMutex
	minLevel Level
	file     *rotatingFile
	out      *log.Logger
}

// New creates a logger. An empty FilePath logs to the console only.
func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	l := &Logger{minLevel: opts.Level}

	var w io.Writer = console
	if opts.FilePath != "" {
		rf, err := openRotatingFile(opts.FilePath, opts.MaxSizeMB, opts.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = rf
		w = io.MultiWriter(console, rf)
	}

	l.out = log.New(w, "", log.LstdFlags)
	return l, nil
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	l.mu.RLock()
	threshold := l.minLevel
	l.mu.RUnlock()
	if level < threshold {
		return
	}
	l.out.Println(level.prefix() + " " + fmt.Sprintf(format, v...))
}

func (l *Logger) Printf(format string, v ...interface{}) {
	l.out.Println(fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }
func (l *Logger) Info(format string, v ...interface{})  { l.write(LevelInfo, format, v...) }
func (l *Logger) Warn(format string, v ...interface{})  { l.write(LevelWarn, format, v...) }
func (l *Logger) Error(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.out.Println("[FATAL] " + fmt.Sprintf(format, v...))
	os.Exit(1)
}

// SetDebug toggles debug output at runtime.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	if enabled {
		l.minLevel = LevelDebug
	} else if l.minLevel == LevelDebug {
		l.minLevel = LevelInfo
	}
	l.mu.Unlock()

	if enabled {
		l.out.Println("[INFO] Debug mode enabled")
	} else {
		l.out.Println("[INFO] Debug mode disabled")
	}
}

func (l *Logger) IsDebug() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minLevel == LevelDebug
}

// FilePath returns the log file path, or "" when logging to the console only.
func (l *Logger) FilePath() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.path
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Writer exposes the combined output for the standard library log package.
func (l *Logger) Writer() io.Writer {
	return l.out.Writer()
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init replaces the global logger.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}

	globalMu.Lock()
	old := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Get returns the global logger, or nil before Init.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func Printf(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Debug(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Info(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Warn(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Error(format, v...)
	}
}

func Fatal(format string, v ...interface{}) {
	if l := Get(); l != nil {
		l.Fatal(format, v...)
	}
	log.Fatalf(format, v...)
}

func SetDebug(enabled bool) {
	if l := Get(); l != nil {
		l.SetDebug(enabled)
	}
}

func IsDebug() bool {
	if l := Get(); l != nil {
		return l.IsDebug()
	}
	return false
}
