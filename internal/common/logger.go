package common

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap core from cfg and exposes it as a *slog.Logger.
// The returned sync func flushes buffered entries and should be deferred.
func NewLogger(cfg LogConfig) (*slog.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrInvalidInput, "log level %q", cfg.Level)
	}

	var zc zap.Config
	switch cfg.Format {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, nil, errors.Wrapf(ErrInvalidInput, "log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := zc.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build zap logger")
	}
	logger := slog.New(zapslog.NewHandler(z.Core(), zapslog.WithCaller(true)))
	return logger, func() { _ = z.Sync() }, nil
}
