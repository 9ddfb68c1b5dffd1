package agent

import (
	"github.com/edoardomanca/greta/internal/config"
)

// Instructions is the fixed persona prompt handed to the hosted agent session.
// Responses are meant to be spoken, so the persona avoids any formatting.
const Instructions = `You are a helpful voice AI assistant.
You eagerly assist users with their questions by providing information from your extensive knowledge.
Your responses are concise, to the point, and without any complex formatting or punctuation including emojis, asterisks, or other symbols.
You are curious, friendly, and have a sense of humor.

You can check the weather for any location in the world - just ask and you'll use the get_weather tool.
When reporting weather, mention the temperature, conditions, and any relevant details like humidity or wind.

When the user says goodbye or indicates they want to end the call, you should call the end_call function.`

// GreetingInstructions seeds the first assistant turn once a session starts.
const GreetingInstructions = "Greet the user and offer your assistance."

// Goodbye is spoken before the call is torn down, without interruptions.
const Goodbye = "Goodbye! Have a great day!"

// SessionConfig is the pipeline configuration handed to the hosted agent
// runtime. It is immutable once constructed and passed by value.
type SessionConfig struct {
	STTModel           string `json:"stt_model"`
	LLMModel           string `json:"llm_model"`
	TTSModel           string `json:"tts_model"`
	VADModel           string `json:"vad_model"`
	TurnDetectionModel string `json:"turn_detection_model"`
	Instructions       string `json:"instructions"`
}

// NewSessionConfig assembles the session configuration from process
// configuration. It has no failure modes of its own: credential or
// reachability problems surface from the runtime that consumes the config.
func NewSessionConfig(cfg config.Config) SessionConfig {
	return SessionConfig{
		STTModel:           cfg.STTModel,
		LLMModel:           cfg.LLMModel,
		TTSModel:           cfg.TTSModel,
		VADModel:           cfg.VADModel,
		TurnDetectionModel: cfg.TurnDetectionModel,
		Instructions:       Instructions,
	}
}
