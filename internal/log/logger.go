package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// Name is the logger name shared by the access log and the collect sink.
	Name = "loganalyzer"

	// LevelEnv selects the minimum severity that gets emitted.
	LevelEnv = "LOG_LEVEL"
)

// New builds the process logger writing to stderr and installs it as zap's
// global logger. The returned func flushes buffered records and is meant to
// be deferred by main.
func New() (*zap.Logger, func()) {
	level, levelErr := levelFromEnv()

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	logger := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	restore := zap.ReplaceGlobals(logger)

	if levelErr != nil {
		logger.Warn("ignoring "+LevelEnv, zap.Error(levelErr))
	}
	return logger, func() {
		_ = logger.Sync()
		restore()
	}
}

func levelFromEnv() (zap.AtomicLevel, error) {
	raw, ok := os.LookupEnv(LevelEnv)
	if !ok || raw == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	lvl, err := zapcore.ParseLevel(raw)
	if err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), err
	}
	return zap.NewAtomicLevelAt(lvl), nil
}
