// Package logging provides the process-wide structured logger for fontserve.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global sugared logger. It defaults to a no-op logger so
// packages can log before Initialize runs (e.g. during init()) without
// risking a nil pointer panic.
var Logger = zap.NewNop().Sugar()

// Initialize configures the global logger. jsonOutput selects structured
// JSON (for production/log aggregation) over a human-readable console
// encoder (for local development).
func Initialize(jsonOutput bool) error {
	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		))
	}
	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Structured field names shared across the write scheduler, reconciler,
// and broadcast engine so log lines stay greppable.
const (
	FieldDataKey     = "data_key"
	FieldGlyphName   = "glyph_name"
	FieldClientUUID  = "client_uuid"
	FieldConnections = "connections"
	FieldComponent   = "component"
	FieldError       = "error"
)
