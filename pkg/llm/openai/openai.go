// Package openai implements the chat-completions client for
// OpenAI-compatible model backends.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"tinyclaw/pkg/config"
	llmtypes "tinyclaw/pkg/llm/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const defaultMaxTokens = 2048

type Client struct {
	client         osdk.Client
	model          string
	maxTokens      int
	requestTimeout time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model := strings.TrimSpace(cfg.Agent.Model)
	if model == "" {
		return nil, errors.New("agent.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	maxTokens := cfg.Agent.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		maxTokens:      maxTokens,
		requestTimeout: requestTimeout,
	}, nil
}

func (c *Client) Chat(ctx context.Context, system string, messages []llmtypes.Message, tools []llmtypes.ToolSpec) (llmtypes.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := clientLogger().With("operation", "chat")
	startedAt := time.Now()
	log.Debug("provider request started", "model", c.model, "messages", len(messages), "tools", len(tools))

	params := osdk.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.model),
		Messages:  convertMessages(system, messages),
		MaxTokens: osdk.Int(int64(c.maxTokens)),
	}
	if specs := convertTools(tools); len(specs) > 0 {
		params.Tools = specs
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return llmtypes.Response{}, fmt.Errorf("chat request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return llmtypes.Response{}, errors.New("chat succeeded but returned no choices")
	}

	result := convertResponse(completion.Choices[0].Message)
	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"response_length", len(result.Text),
		"tool_calls", len(result.ToolCalls),
	)
	return result, nil
}

// convertMessages flattens the content-block message model into the
// chat-completions shape: tool_use blocks become assistant tool_calls and
// each tool_result block becomes its own role:"tool" message.
func convertMessages(system string, messages []llmtypes.Message) []osdk.ChatCompletionMessageParamUnion {
	out := make([]osdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, osdk.SystemMessage(system))
	}

	for _, message := range messages {
		var text string
		var toolCalls []osdk.ChatCompletionMessageToolCallUnionParam
		var toolResults []llmtypes.Part

		for _, part := range message.Parts {
			switch part.Type {
			case llmtypes.PartText:
				if text != "" {
					text += "\n"
				}
				text += part.Text
			case llmtypes.PartToolUse:
				input := string(part.Input)
				if input == "" {
					input = "{}"
				}
				toolCalls = append(toolCalls, osdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &osdk.ChatCompletionMessageFunctionToolCallParam{
						ID: part.ID,
						Function: osdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      part.Name,
							Arguments: input,
						},
					},
				})
			case llmtypes.PartToolResult:
				toolResults = append(toolResults, part)
			}
		}

		switch {
		case len(toolCalls) > 0:
			assistant := osdk.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				assistant.Content = osdk.ChatCompletionAssistantMessageParamContentUnion{OfString: osdk.String(text)}
			}
			out = append(out, osdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case len(toolResults) > 0:
			for _, part := range toolResults {
				out = append(out, osdk.ToolMessage(part.Content, part.ToolUseID))
			}
		case message.Role == llmtypes.RoleAssistant:
			out = append(out, osdk.AssistantMessage(text))
		default:
			out = append(out, osdk.UserMessage(text))
		}
	}

	return out
}

func convertTools(tools []llmtypes.ToolSpec) []osdk.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]osdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var parameters map[string]any
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &parameters); err != nil {
				parameters = nil
			}
		}
		if parameters == nil {
			parameters = map[string]any{"type": "object"}
		}

		definition := shared.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: shared.FunctionParameters(parameters),
		}
		if tool.Description != "" {
			definition.Description = osdk.String(tool.Description)
		}
		out = append(out, osdk.ChatCompletionFunctionTool(definition))
	}
	return out
}

func convertResponse(message osdk.ChatCompletionMessage) llmtypes.Response {
	result := llmtypes.Response{Text: strings.TrimSpace(message.Content)}
	for _, call := range message.ToolCalls {
		input := call.Function.Arguments
		if strings.TrimSpace(input) == "" {
			input = "{}"
		}
		result.ToolCalls = append(result.ToolCalls, llmtypes.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(input),
		})
	}
	return result
}

func clientLogger() *slog.Logger {
	return slog.Default().With("component", "llm.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
