package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger or a console development logger.
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// ForVerification returns the logger used by the verification components.
// mode is one of "disabled", "errors" or "all".
func ForVerification(mode string, json bool) (*zap.Logger, error) {
	switch mode {
	case "disabled":
		return zap.NewNop(), nil
	case "errors":
		return New("error", json)
	case "all":
		return New("debug", json)
	}
	return nil, fmt.Errorf("unknown logging mode %q", mode)
}
