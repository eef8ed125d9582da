package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8086" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8086")
	}
	if cfg.SampleRateIn != 16000 || cfg.SampleRateOut != 24000 {
		t.Fatalf("sample rates = %d/%d, want 16000/24000", cfg.SampleRateIn, cfg.SampleRateOut)
	}
	if cfg.HotwordID != "ascolta" {
		t.Fatalf("HotwordID = %q, want %q", cfg.HotwordID, "ascolta")
	}
	if cfg.ConversationDeadline != 10*time.Second {
		t.Fatalf("ConversationDeadline = %v, want 10s", cfg.ConversationDeadline)
	}
	if cfg.AssistantMode != "auto" {
		t.Fatalf("AssistantMode = %q, want %q", cfg.AssistantMode, "auto")
	}
	if cfg.HistoryKeep != 512 {
		t.Fatalf("HistoryKeep = %d, want 512", cfg.HistoryKeep)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("CONVERSATION_DEADLINE", "25s")
	t.Setenv("SAMPLE_RATE_OUT", "16000")
	t.Setenv("ASSISTANT_MODE", "mock")
	t.Setenv("HOTWORD_THRESHOLD", "0.4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ConversationDeadline != 25*time.Second {
		t.Fatalf("ConversationDeadline = %v, want 25s", cfg.ConversationDeadline)
	}
	if cfg.SampleRateOut != 16000 {
		t.Fatalf("SampleRateOut = %d, want 16000", cfg.SampleRateOut)
	}
	if cfg.AssistantMode != "mock" {
		t.Fatalf("AssistantMode = %q, want %q", cfg.AssistantMode, "mock")
	}
	if cfg.HotwordThreshold != 0.4 {
		t.Fatalf("HotwordThreshold = %v, want 0.4", cfg.HotwordThreshold)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad deadline", "CONVERSATION_DEADLINE", "eventually"},
		{"deadline too short", "CONVERSATION_DEADLINE", "200ms"},
		{"unsupported output rate", "SAMPLE_RATE_OUT", "44100"},
		{"threshold out of range", "HOTWORD_THRESHOLD", "1.5"},
		{"bad mode", "ASSISTANT_MODE", "telepathy"},
		{"non-positive history", "HISTORY_KEEP", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"SAMPLE_RATE_IN",
		"SAMPLE_RATE_OUT",
		"HOTWORD_ID",
		"HOTWORD_THRESHOLD",
		"HOTWORD_WINDOW",
		"CHIME_PATH",
		"CHIME_PLAYER_COMMAND",
		"CONVERSATION_DEADLINE",
		"ASSISTANT_MODE",
		"ASSISTANT_WS_URL",
		"ASSISTANT_API_KEY",
		"RECORDER_COMMAND",
		"PLAYER_COMMAND",
		"DATABASE_URL",
		"DB_PATH",
		"HISTORY_KEEP",
		"NATS_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
