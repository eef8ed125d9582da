package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

var (
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
)

// Config holds logging configuration.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "console"
}

// Initialize sets up the global logger from environment variables.
func Initialize() error {
	return InitializeWithConfig(Config{
		Level:  envOrDefault("LOG_LEVEL", "info"),
		Format: envOrDefault("LOG_FORMAT", "console"),
	})
}

// InitializeWithConfig sets up the global logger with the given configuration.
func InitializeWithConfig(cfg Config) error {
	var zapConfig zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return err
	}

	Logger = logger
	Sugar = logger.Sugar()
	return nil
}

// Sync flushes buffered log entries. Safe to call on shutdown even if
// Initialize was never run.
func Sync() {
	if Logger != nil {
		// Sync can fail on some platforms when stderr is a terminal; the
		// entries are already flushed in that case.
		_ = Logger.Sync()
	}
}

// LogSessionEvent logs a speech-session lifecycle event.
func LogSessionEvent(sessionID, event string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	baseFields := []zap.Field{
		zap.String("component", "session"),
		zap.String("session_id", sessionID),
		zap.String("event", event),
	}
	Logger.Info("Session event", append(baseFields, fields...)...)
}

// LogHotword logs hotword-gate activity.
func LogHotword(stage string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	baseFields := []zap.Field{
		zap.String("component", "hotword"),
		zap.String("stage", stage),
	}
	Logger.Info("Hotword gate", append(baseFields, fields...)...)
}

// LogAudio logs audio device activity.
func LogAudio(device, stage string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	baseFields := []zap.Field{
		zap.String("component", "audio"),
		zap.String("device", device),
		zap.String("stage", stage),
	}
	Logger.Info("Audio device", append(baseFields, fields...)...)
}

// LogNATSEvent logs message-bus activity.
func LogNATSEvent(subject, action string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	baseFields := []zap.Field{
		zap.String("component", "messaging"),
		zap.String("subject", subject),
		zap.String("action", action),
	}
	Logger.Info("NATS event", append(baseFields, fields...)...)
}

// LogError logs an error with context.
func LogError(err error, message string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	Logger.Error(message, append([]zap.Field{zap.Error(err)}, fields...)...)
}

// LogWarn logs a warning with context.
func LogWarn(message string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	Logger.Warn(message, fields...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
