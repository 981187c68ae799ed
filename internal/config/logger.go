package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/modemwatch/internal/version"
)

// NewLogger builds the process logger from the logging section.
//
// JSON lines carry an RFC 3339 "time" so they line up with the stat record
// timestamps, and sampling is off so every ping failure is kept. Console
// output is meant for a terminal and keeps zap's development encoder. When
// File is set the log goes there as well as to stderr.
func NewLogger(lc LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	var cfg zap.Config
	switch lc.Format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", lc.Format)
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = level > zapcore.DebugLevel
	if lc.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, lc.File)
	}

	return cfg.Build(zap.Fields(
		zap.String("service", "modemwatch"),
		zap.String("version", version.Short()),
	))
}
