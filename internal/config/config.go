package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the greta voice agent worker and
// the sipctl provisioning tool. It is built once at startup and passed by
// value to every consumer.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Agent platform credentials.
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Telephony provisioning credentials. Kept separate from the agent set on
	// purpose: the SIP service often lives in a different deployment.
	SIPLiveKitURL       string
	SIPLiveKitAPIKey    string
	SIPLiveKitAPISecret string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ConsoleModel  string
	MaxToolRounds int

	// Pipeline model identifiers handed to the hosted agent session.
	STTModel           string
	LLMModel           string
	TTSModel           string
	VADModel           string
	TurnDetectionModel string

	AgentIdentity string
	RoomPrefix    string

	RecordingsDir string
	ModelsDir     string

	LKCLIPath    string
	SIPConfigDir string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "greta"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,

		LiveKitURL:       stringsTrimSpace("LIVEKIT_URL"),
		LiveKitAPIKey:    stringsTrimSpace("LIVEKIT_API_KEY"),
		LiveKitAPISecret: stringsTrimSpace("LIVEKIT_API_SECRET"),

		SIPLiveKitURL:       envOrDefault("SIP_LIVEKIT_URL", "http://localhost:7880"),
		SIPLiveKitAPIKey:    stringsTrimSpace("SIP_LIVEKIT_API_KEY"),
		SIPLiveKitAPISecret: stringsTrimSpace("SIP_LIVEKIT_API_SECRET"),

		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL: stringsTrimSpace("OPENAI_BASE_URL"),
		ConsoleModel:  envOrDefault("CONSOLE_LLM_MODEL", "gpt-4.1-mini"),
		MaxToolRounds: 4,

		STTModel: envOrDefault("AGENT_STT_MODEL", "assemblyai/universal-streaming:en"),
		LLMModel: envOrDefault("AGENT_LLM_MODEL", "openai/gpt-4.1-mini"),
		// Fixed Cartesia voice for the default persona.
		TTSModel:           envOrDefault("AGENT_TTS_MODEL", "cartesia/sonic-3:9626c31c-bec5-4cca-baa8-f8ba9e84c8bc"),
		VADModel:           envOrDefault("AGENT_VAD_MODEL", "silero"),
		TurnDetectionModel: envOrDefault("AGENT_TURN_DETECTION_MODEL", "livekit/multilingual"),

		AgentIdentity: envOrDefault("AGENT_IDENTITY", "greta-agent"),
		RoomPrefix:    envOrDefault("AGENT_ROOM_PREFIX", "call-"),

		RecordingsDir: envOrDefault("RECORDINGS_DIR", "recordings"),
		ModelsDir:     envOrDefault("MODELS_DIR", ".models"),

		LKCLIPath:    envOrDefault("LK_CLI_PATH", "lk"),
		SIPConfigDir: envOrDefault("SIP_CONFIG_DIR", "sip-config"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxToolRounds, err = intFromEnv("CONSOLE_MAX_TOOL_ROUNDS", cfg.MaxToolRounds)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.MaxToolRounds <= 0 {
		return Config{}, fmt.Errorf("CONSOLE_MAX_TOOL_ROUNDS must be positive")
	}
	if strings.TrimSpace(cfg.RoomPrefix) == "" {
		return Config{}, fmt.Errorf("AGENT_ROOM_PREFIX must not be empty")
	}

	return cfg, nil
}

// RequirePlatform validates the agent platform credential set. The worker
// modes need it; console mode does not.
func (c Config) RequirePlatform() error {
	if c.LiveKitURL == "" {
		return fmt.Errorf("LIVEKIT_URL is not set")
	}
	if c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	return nil
}

// RequireProvisioning validates the telephony credential set used by sipctl
// in direct API mode. CLI mode defers credential handling to the lk binary.
func (c Config) RequireProvisioning() error {
	if c.SIPLiveKitURL == "" {
		return fmt.Errorf("SIP_LIVEKIT_URL is not set")
	}
	if c.SIPLiveKitAPIKey == "" || c.SIPLiveKitAPISecret == "" {
		return fmt.Errorf("SIP_LIVEKIT_API_KEY and SIP_LIVEKIT_API_SECRET are required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
