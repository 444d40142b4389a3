// Package logging provides the module-scoped key/value logger used across the front-end.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String returns the upper-case name of the level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name. Unknown names fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger is the interface every component logs through
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
	WithModule(module string) Logger
}

// SimpleLogger writes lines of the form "[module] LEVEL: msg key=value ..."
type SimpleLogger struct {
	module    string
	level     Level
	logger    *log.Logger
	useColors bool
	exit      func(int)
}

// NewSimpleLogger creates a logger writing to stdout.
// Colours are only used when stdout is a terminal.
func NewSimpleLogger(module string, level Level, useColors bool) *SimpleLogger {
	return NewSimpleLoggerWithWriter(module, level, useColors && stdoutIsTTY(), os.Stdout)
}

// NewSimpleLoggerWithWriter creates a logger writing to w
func NewSimpleLoggerWithWriter(module string, level Level, useColors bool, w io.Writer) *SimpleLogger {
	return &SimpleLogger{
		module:    module,
		level:     level,
		logger:    log.New(w, "", log.LstdFlags),
		useColors: useColors,
		exit:      os.Exit,
	}
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func (l *SimpleLogger) format(level Level, msg string, args []interface{}) string {
	var sb strings.Builder

	module := "[" + l.module + "]"
	name := level.String()
	if l.useColors {
		module = colorCyan + module + colorReset
		name = levelColor(level) + name + colorReset
	}
	sb.WriteString(module)
	sb.WriteByte(' ')
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(msg)

	// Odd trailing keys are dropped.
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}
	return sb.String()
}

func levelColor(level Level) string {
	switch level {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorGreen
	case LevelWarn:
		return colorYellow
	case LevelFatal:
		return colorRed + colorBold
	default:
		return colorRed
	}
}

func (l *SimpleLogger) log(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	l.logger.Println(l.format(level, msg, args))
	if level == LevelFatal {
		l.exit(1)
	}
}

// Debug logs a debug message
func (l *SimpleLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }

// Info logs an informational message
func (l *SimpleLogger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args) }

// Warn logs a warning
func (l *SimpleLogger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args) }

// Error logs an error
func (l *SimpleLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

// Fatal logs and exits the process
func (l *SimpleLogger) Fatal(msg string, args ...interface{}) { l.log(LevelFatal, msg, args) }

// WithModule returns a logger whose module is nested under this one ("main/web").
func (l *SimpleLogger) WithModule(module string) Logger {
	child := *l
	if l.module != "" {
		child.module = l.module + "/" + module
	} else {
		child.module = module
	}
	return &child
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Discard returns a logger that drops everything. Handy in tests.
func Discard() Logger {
	return NewSimpleLoggerWithWriter("discard", LevelFatal+1, false, io.Discard)
}
