package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const FormatJSON = "json"

// NewZapLogger builds the logger shared by every binary. The console format
// uses zap's development encoder; "json" switches to the production encoder
// for log shippers. An unknown level falls back to info.
func NewZapLogger(level, format string) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		logLevel = zapcore.InfoLevel
		log.Printf("Invalid log level '%s', using default 'info'\n", level)
	}

	cfg := zap.NewDevelopmentConfig()
	if format == FormatJSON {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = logLevel > zapcore.DebugLevel

	return cfg.Build()
}
