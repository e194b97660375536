package logger

import (
	"fmt"
	"strings"

	"github.com/progress-ledger/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps the configured level name onto a zap level. Unknown names fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds the JSON production logger shared by every ledger process.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.Logging.Level)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.DisableCaller = level != zapcore.DebugLevel
	zapCfg.DisableStacktrace = level != zapcore.DebugLevel

	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	log = log.With(
		zap.String("app", cfg.Application.Name),
		zap.String("env", cfg.Application.Env),
	)
	log.Info("logger initialized", zap.Stringer("level", level))

	return log, nil
}
