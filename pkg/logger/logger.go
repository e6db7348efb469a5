package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger with the given level and encoding ("json" or
// "console").
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// NewNop returns a logger that discards everything. Test helper.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// WithCall annotates a logger with the standard call identifiers.
func WithCall(log *zap.SugaredLogger, callID, channelID string) *zap.SugaredLogger {
	return log.With("call_id", callID, "channel_id", channelID)
}
