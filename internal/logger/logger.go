package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// AdminNotifier receives error-level entries. Implementations must not block.
type AdminNotifier interface {
	NotifyAdmin(text string)
}

// WithAdminForwarding copies every error-level entry to the admin chat.
func WithAdminForwarding(log *zap.Logger, n AdminNotifier) *zap.Logger {
	if n == nil {
		return log
	}
	return log.WithOptions(zap.Hooks(func(e zapcore.Entry) error {
		if e.Level < zapcore.ErrorLevel {
			return nil
		}
		n.NotifyAdmin(FormatEntry(e))
		return nil
	}))
}

// FormatEntry renders an entry the way it is shown to the admin.
func FormatEntry(e zapcore.Entry) string {
	text := fmt.Sprintf("❗ %s\n", e.Level.CapitalString())
	if e.LoggerName != "" {
		text += fmt.Sprintf("Logger: %s\n", e.LoggerName)
	}
	if e.Caller.Defined {
		text += fmt.Sprintf("File: %s\n", e.Caller.TrimmedPath())
	}
	return text + "Message: " + e.Message
}
