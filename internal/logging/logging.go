// Package logging builds the zap logger shared by every wallet component.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger in production and a console logger otherwise, at the given level.
// Unknown levels fall back to info.
func New(level, env string) *zap.Logger {
	atomicLevel := zap.NewAtomicLevelAt(parseLevel(level))

	var encoder zapcore.Encoder
	if strings.EqualFold(env, "production") {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	// Stderr keeps stdout free for CLI output.
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// UserID is the field key used for the acting principal.
func UserID(id string) zap.Field { return zap.String("user_id", id) }

// AttemptID is the field key used for authorization attempts.
func AttemptID(id string) zap.Field { return zap.String("attempt_id", id) }

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
