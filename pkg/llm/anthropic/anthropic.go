// Package anthropic implements the messages-API client used as the default
// model backend.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"tinyclaw/pkg/config"
	llmtypes "tinyclaw/pkg/llm/types"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	messagesPath   = "/v1/messages"
	apiVersion     = "2023-06-01"

	defaultMaxTokens = 2048
)

type Client struct {
	baseURL        string
	apiKey         string
	model          string
	maxTokens      int
	requestTimeout time.Duration
	httpClient     *http.Client
}

func New(cfg *config.Config) (*Client, error) {
	apiKey := resolveAPIKey(cfg.Providers.Anthropic)
	if apiKey == "" {
		return nil, errors.New("providers.anthropic.api_key_env is required or ANTHROPIC_API_KEY must be set")
	}

	model := strings.TrimSpace(cfg.Agent.Model)
	if model == "" {
		return nil, errors.New("agent.model is required")
	}

	baseURL := strings.TrimSpace(cfg.Providers.Anthropic.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxTokens := cfg.Agent.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		model:          model,
		maxTokens:      maxTokens,
		requestTimeout: time.Duration(cfg.Providers.Anthropic.RequestTimeoutSeconds) * time.Second,
		httpClient:     &http.Client{},
	}, nil
}

// Wire types for the messages API.

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []apiContent
}

type apiContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiResponse struct {
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
}

func (c *Client) Chat(ctx context.Context, system string, messages []llmtypes.Message, tools []llmtypes.ToolSpec) (llmtypes.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := clientLogger().With("operation", "chat")
	startedAt := time.Now()

	request := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  convertMessages(messages),
		Tools:     convertTools(tools),
	}
	log.Debug("provider request started", "model", c.model, "messages", len(messages), "tools", len(tools))

	body, err := json.Marshal(request)
	if err != nil {
		return llmtypes.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return llmtypes.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return llmtypes.Response{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", httpResp.StatusCode)
		return llmtypes.Response{}, fmt.Errorf("anthropic API error %d: %s", httpResp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var response apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return llmtypes.Response{}, fmt.Errorf("decode response: %w", err)
	}

	result := convertResponse(response)
	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"response_length", len(result.Text),
		"tool_calls", len(result.ToolCalls),
	)
	return result, nil
}

func convertMessages(messages []llmtypes.Message) []apiMessage {
	out := make([]apiMessage, 0, len(messages))
	for _, message := range messages {
		// Plain single-text messages ship as bare strings, keeping request
		// bodies small for the common case.
		if len(message.Parts) == 1 && message.Parts[0].Type == llmtypes.PartText {
			out = append(out, apiMessage{Role: message.Role, Content: message.Parts[0].Text})
			continue
		}

		content := make([]apiContent, 0, len(message.Parts))
		for _, part := range message.Parts {
			switch part.Type {
			case llmtypes.PartText:
				content = append(content, apiContent{Type: "text", Text: part.Text})
			case llmtypes.PartToolUse:
				input := part.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				content = append(content, apiContent{Type: "tool_use", ID: part.ID, Name: part.Name, Input: input})
			case llmtypes.PartToolResult:
				content = append(content, apiContent{Type: "tool_result", ToolUseID: part.ToolUseID, Content: part.Content})
			}
		}
		out = append(out, apiMessage{Role: message.Role, Content: content})
	}
	return out
}

func convertTools(tools []llmtypes.ToolSpec) []apiTool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]apiTool, 0, len(tools))
	for _, tool := range tools {
		schema := tool.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, apiTool{Name: tool.Name, Description: tool.Description, InputSchema: schema})
	}
	return out
}

func convertResponse(response apiResponse) llmtypes.Response {
	var result llmtypes.Response
	var lines []string
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			if text := strings.TrimSpace(block.Text); text != "" {
				lines = append(lines, text)
			}
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, llmtypes.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	result.Text = strings.Join(lines, "\n")
	return result
}

func clientLogger() *slog.Logger {
	return slog.Default().With("component", "llm.anthropic")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.AnthropicProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
}
