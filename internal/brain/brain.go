package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/edoardomanca/greta/internal/agent"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/tools"
)

const (
	toolGetWeather = "get_weather"
	toolEndCall    = "end_call"
)

// chatClient is the slice of the OpenAI client the brain needs. Tests plug
// in a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Brain drives text turns against the chat model with the same persona and
// tools the hosted voice pipeline uses. Console mode and the websocket
// console both run on it; it never touches audio.
type Brain struct {
	client        chatClient
	model         string
	weather       *tools.WeatherService
	maxToolRounds int
	metrics       *observability.Metrics
	messages      []openai.ChatCompletionMessage
}

// SetMetrics attaches tool-call instrumentation. Optional; a nil-metrics
// brain works the same.
func (b *Brain) SetMetrics(m *observability.Metrics) { b.metrics = m }

// New builds a Brain from process configuration. It needs the OpenAI
// credential set; the platform credentials are not involved.
func New(cfg config.Config, weather *tools.WeatherService) (*Brain, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg, weather), nil
}

func newWithClient(client chatClient, cfg config.Config, weather *tools.WeatherService) *Brain {
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 4
	}
	return &Brain{
		client:        client,
		model:         cfg.ConsoleModel,
		weather:       weather,
		maxToolRounds: rounds,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: agent.Instructions},
		},
	}
}

func toolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolGetWeather,
				Description: "Get current weather and forecast for any location in the world.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"location": {
							"type": "string",
							"description": "The city, place, or location to get weather for"
						}
					},
					"required": ["location"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolEndCall,
				Description: "End the call when the user says goodbye or wants to hang up.",
				Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			},
		},
	}
}

// Greet produces the opening assistant line.
func (b *Brain) Greet(ctx context.Context) (string, error) {
	reply, _, err := b.run(ctx, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: agent.GreetingInstructions,
	})
	return reply, err
}

// Reply handles one user turn. hangup reports that the model decided to end
// the call; the returned text is then the goodbye line.
func (b *Brain) Reply(ctx context.Context, userText string) (reply string, hangup bool, err error) {
	return b.run(ctx, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})
}

func (b *Brain) run(ctx context.Context, msg openai.ChatCompletionMessage) (string, bool, error) {
	b.messages = append(b.messages, msg)

	hangup := false
	for round := 0; round < b.maxToolRounds; round++ {
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    b.model,
			Messages: b.messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return "", false, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", false, fmt.Errorf("chat completion returned no choices")
		}

		choice := resp.Choices[0].Message
		b.messages = append(b.messages, choice)

		if len(choice.ToolCalls) == 0 {
			text := strings.TrimSpace(choice.Content)
			if hangup && text == "" {
				text = agent.Goodbye
			}
			return text, hangup, nil
		}

		for _, call := range choice.ToolCalls {
			result, endsCall := b.execTool(ctx, call)
			hangup = hangup || endsCall
			b.messages = append(b.messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    result,
			})
		}

		if hangup {
			// No further completion needed; the goodbye line is fixed.
			return agent.Goodbye, true, nil
		}
	}

	return "", hangup, fmt.Errorf("tool loop exceeded %d rounds", b.maxToolRounds)
}

func (b *Brain) execTool(ctx context.Context, call openai.ToolCall) (result string, endsCall bool) {
	switch call.Function.Name {
	case toolGetWeather:
		var args struct {
			Location string `json:"location"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || strings.TrimSpace(args.Location) == "" {
			b.countTool(toolGetWeather, "bad_args")
			return "Sorry, I didn't catch which location you meant.", false
		}
		b.countTool(toolGetWeather, "ok")
		return b.weather.Report(ctx, args.Location), false
	case toolEndCall:
		b.countTool(toolEndCall, "ok")
		return "The call is being ended.", true
	default:
		b.countTool(call.Function.Name, "unknown")
		return fmt.Sprintf("Unknown tool %q.", call.Function.Name), false
	}
}

func (b *Brain) countTool(tool, outcome string) {
	if b.metrics != nil {
		b.metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
	}
}
