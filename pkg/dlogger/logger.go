// Package dlogger builds the zap loggers of connectors from a level and a format
package dlogger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelDebug sets the log level to debug, which traces every store call
	LogLevelDebug = "debug"

	// LogLevelWarn sets the log level to warn, which reports corrupted or retried transfers
	LogLevelWarn = "warn"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"
)

const (
	// FormatJSON encodes entries as JSON objects
	FormatJSON = "json"

	// FormatConsole encodes entries for humans
	FormatConsole = "console"
)

// GetLogger returns a JSON zap logger with the specified level
func GetLogger(logLevel string) (*zap.Logger, error) {
	return New(logLevel, FormatJSON)
}

// New zap logger with the specified level and format. Empty values are info and json.
func New(logLevel, format string) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	if logLevel == "" {
		logLevel = LogLevelInfo
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	switch format {
	case "", FormatJSON:
	case FormatConsole:
		zapConfig.Encoding = FormatConsole
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unrecognized log format: %q", format)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapConfig.Build()
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string) *zap.Logger {
	l, err := GetLogger(logLevel)
	if err != nil {
		panic(err)
	}
	return l
}
