package agent

import (
	"strings"
	"testing"

	"github.com/edoardomanca/greta/internal/config"
)

func TestNewSessionConfigIsDeterministic(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	a := NewSessionConfig(cfg)
	b := NewSessionConfig(cfg)
	if a != b {
		t.Fatalf("two builds from identical config differ: %+v vs %+v", a, b)
	}
}

func TestNewSessionConfigCarriesModelIdentifiers(t *testing.T) {
	cfg := config.Config{
		STTModel:           "stt-x",
		LLMModel:           "llm-y",
		TTSModel:           "tts-z",
		VADModel:           "vad-v",
		TurnDetectionModel: "turn-t",
	}

	sc := NewSessionConfig(cfg)
	if sc.STTModel != "stt-x" || sc.LLMModel != "llm-y" || sc.TTSModel != "tts-z" {
		t.Fatalf("model identifiers not carried: %+v", sc)
	}
	if sc.VADModel != "vad-v" || sc.TurnDetectionModel != "turn-t" {
		t.Fatalf("vad/turn identifiers not carried: %+v", sc)
	}
	if sc.Instructions != Instructions {
		t.Fatalf("instructions differ from persona prompt")
	}
}

func TestInstructionsAreSpeakable(t *testing.T) {
	for _, banned := range []string{"*", "#", "```"} {
		if strings.Contains(Instructions, banned) {
			t.Fatalf("persona prompt contains formatting token %q", banned)
		}
	}
	if !strings.Contains(Instructions, "get_weather") {
		t.Fatalf("persona prompt does not mention the weather tool")
	}
	if !strings.Contains(Instructions, "end_call") {
		t.Fatalf("persona prompt does not mention the end_call tool")
	}
}
