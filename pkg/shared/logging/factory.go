package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileRotationConfig contains file logging rotation settings
type FileRotationConfig struct {
	Path       string // required
	MaxSizeMB  int    // default 100
	MaxBackups int    // default 3
	MaxAge     int    // days, default 28
	Compress   bool
}

func (c FileRotationConfig) withDefaults() FileRotationConfig {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAge == 0 {
		c.MaxAge = 28
	}
	return c
}

// NewLoggerWithFile creates a logger that writes to stdout and, when fileConfig
// names a path, also to a rotated log file. Colours are disabled whenever a file
// is written so the file never contains ANSI escapes.
func NewLoggerWithFile(module string, level Level, useColors bool, fileConfig *FileRotationConfig) (*SimpleLogger, error) {
	if fileConfig == nil || fileConfig.Path == "" {
		return NewSimpleLogger(module, level, useColors), nil
	}

	cfg := fileConfig.withDefaults()
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	return NewSimpleLoggerWithWriter(module, level, false, io.MultiWriter(os.Stdout, fileWriter)), nil
}
