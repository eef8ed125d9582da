package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the ascolta daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Audio formats. Capture and playback are LINEAR16 PCM, mono.
	SampleRateIn  int
	SampleRateOut int

	// Hotword gate.
	HotwordID          string
	HotwordThreshold   float64
	HotwordWindow      time.Duration
	ChimePath          string
	ChimePlayerCommand string

	// Speech session.
	ConversationDeadline time.Duration

	// Remote assistant service.
	AssistantMode   string // auto | ws | mock
	AssistantWSURL  string
	AssistantAPIKey string

	// Capture/playback device commands.
	RecorderCommand string
	PlayerCommand   string

	// Session history store.
	DatabaseURL string // postgres, wins when set
	DBPath      string // sqlite fallback
	HistoryKeep int

	// Message bus; empty disables publishing.
	NATSURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8086"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "ascolta"),
		SampleRateIn:         16000,
		SampleRateOut:        24000,
		HotwordID:            envOrDefault("HOTWORD_ID", "ascolta"),
		HotwordThreshold:     0.7,
		HotwordWindow:        700 * time.Millisecond,
		ChimePath:            envOrDefault("CHIME_PATH", "resources/ding.wav"),
		ChimePlayerCommand:   envOrDefault("CHIME_PLAYER_COMMAND", ""),
		ConversationDeadline: 10 * time.Second,
		AssistantMode:        envOrDefault("ASSISTANT_MODE", "auto"),
		AssistantWSURL:       envOrDefault("ASSISTANT_WS_URL", ""),
		AssistantAPIKey:      trimmedEnv("ASSISTANT_API_KEY"),
		RecorderCommand:      envOrDefault("RECORDER_COMMAND", ""),
		PlayerCommand:        envOrDefault("PLAYER_COMMAND", ""),
		DatabaseURL:          trimmedEnv("DATABASE_URL"),
		DBPath:               envOrDefault("DB_PATH", "./data/ascolta.db"),
		HistoryKeep:          512,
		NATSURL:              trimmedEnv("NATS_URL"),
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationDeadline, err = durationFromEnv("CONVERSATION_DEADLINE", cfg.ConversationDeadline)
	if err != nil {
		return Config{}, err
	}
	cfg.HotwordWindow, err = durationFromEnv("HOTWORD_WINDOW", cfg.HotwordWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRateIn, err = intFromEnv("SAMPLE_RATE_IN", cfg.SampleRateIn)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRateOut, err = intFromEnv("SAMPLE_RATE_OUT", cfg.SampleRateOut)
	if err != nil {
		return Config{}, err
	}
	cfg.HotwordThreshold, err = floatFromEnv("HOTWORD_THRESHOLD", cfg.HotwordThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryKeep, err = intFromEnv("HISTORY_KEEP", cfg.HistoryKeep)
	if err != nil {
		return Config{}, err
	}

	if cfg.SampleRateIn <= 0 {
		return Config{}, fmt.Errorf("SAMPLE_RATE_IN must be positive")
	}
	if cfg.SampleRateOut != 16000 && cfg.SampleRateOut != 24000 {
		return Config{}, fmt.Errorf("SAMPLE_RATE_OUT must be 16000 or 24000")
	}
	if cfg.ConversationDeadline < time.Second {
		return Config{}, fmt.Errorf("CONVERSATION_DEADLINE must be at least 1s")
	}
	if cfg.HotwordThreshold <= 0 || cfg.HotwordThreshold > 1 {
		return Config{}, fmt.Errorf("HOTWORD_THRESHOLD must be in (0, 1]")
	}
	if cfg.HistoryKeep <= 0 {
		return Config{}, fmt.Errorf("HISTORY_KEEP must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AssistantMode)) {
	case "auto", "ws", "mock":
	default:
		return Config{}, fmt.Errorf("invalid ASSISTANT_MODE: %q (expected auto|ws|mock)", cfg.AssistantMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
