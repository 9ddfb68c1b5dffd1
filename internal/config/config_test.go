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

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.STTModel != "assemblyai/universal-streaming:en" {
		t.Fatalf("STTModel = %q, want default", cfg.STTModel)
	}
	if cfg.LLMModel != "openai/gpt-4.1-mini" {
		t.Fatalf("LLMModel = %q, want default", cfg.LLMModel)
	}
	if cfg.VADModel != "silero" {
		t.Fatalf("VADModel = %q, want %q", cfg.VADModel, "silero")
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.RoomPrefix != "call-" {
		t.Fatalf("RoomPrefix = %q, want %q", cfg.RoomPrefix, "call-")
	}
	if cfg.LKCLIPath != "lk" {
		t.Fatalf("LKCLIPath = %q, want %q", cfg.LKCLIPath, "lk")
	}
}

func TestLoadKeepsCredentialSetsIndependent(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LIVEKIT_URL", "wss://agent.example.com")
	t.Setenv("LIVEKIT_API_KEY", "agent-key")
	t.Setenv("LIVEKIT_API_SECRET", "agent-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.RequirePlatform(); err != nil {
		t.Fatalf("RequirePlatform() error = %v", err)
	}
	// The agent credentials must never leak into the provisioning set.
	if err := cfg.RequireProvisioning(); err == nil {
		t.Fatalf("RequireProvisioning() = nil, want error when SIP credentials unset")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("AGENT_TTS_MODEL", "cartesia/sonic-3:custom-voice")
	t.Setenv("CONSOLE_MAX_TOOL_ROUNDS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.TTSModel != "cartesia/sonic-3:custom-voice" {
		t.Fatalf("TTSModel = %q, want override", cfg.TTSModel)
	}
	if cfg.MaxToolRounds != 7 {
		t.Fatalf("MaxToolRounds = %d, want 7", cfg.MaxToolRounds)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "APP_SHUTDOWN_TIMEOUT", "soon"},
		{"bad bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
		{"bad int", "CONSOLE_MAX_TOOL_ROUNDS", "many"},
		{"zero rounds", "CONSOLE_MAX_TOOL_ROUNDS", "0"},
		{"empty prefix", "AGENT_ROOM_PREFIX", " "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() = nil error, want failure for %s=%q", tc.key, tc.value)
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
		"APP_ALLOW_ANY_ORIGIN",
		"LIVEKIT_URL",
		"LIVEKIT_API_KEY",
		"LIVEKIT_API_SECRET",
		"SIP_LIVEKIT_URL",
		"SIP_LIVEKIT_API_KEY",
		"SIP_LIVEKIT_API_SECRET",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"CONSOLE_LLM_MODEL",
		"CONSOLE_MAX_TOOL_ROUNDS",
		"AGENT_STT_MODEL",
		"AGENT_LLM_MODEL",
		"AGENT_TTS_MODEL",
		"AGENT_VAD_MODEL",
		"AGENT_TURN_DETECTION_MODEL",
		"AGENT_IDENTITY",
		"AGENT_ROOM_PREFIX",
		"RECORDINGS_DIR",
		"MODELS_DIR",
		"LK_CLI_PATH",
		"SIP_CONFIG_DIR",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
