package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tinyclaw/pkg/config"
	llmtypes "tinyclaw/pkg/llm/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	cfg := &config.Config{}
	cfg.Agent.Model = "claude-test"
	cfg.Agent.MaxTokens = 128
	cfg.Providers.Anthropic.BaseURL = server.URL

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestChatSendsHeadersAndBody(t *testing.T) {
	var captured apiRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("version header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn"}`))
	}))

	resp, err := client.Chat(context.Background(), "be brief", []llmtypes.Message{
		llmtypes.Text(llmtypes.RoleUser, "hello"),
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("text = %q", resp.Text)
	}

	if captured.Model != "claude-test" || captured.MaxTokens != 128 {
		t.Fatalf("request = %+v", captured)
	}
	if captured.System != "be brief" {
		t.Fatalf("system = %q", captured.System)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("message count = %d", len(captured.Messages))
	}
	// Single-text messages collapse to a bare string.
	if content, ok := captured.Messages[0].Content.(string); !ok || content != "hello" {
		t.Fatalf("content = %v", captured.Messages[0].Content)
	}
}

func TestChatParsesToolUse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[
			{"type":"text","text":"checking"},
			{"type":"tool_use","id":"toolu_1","name":"web_search","input":{"query":"weather"}}
		],"stop_reason":"tool_use"}`))
	}))

	resp, err := client.Chat(context.Background(), "", []llmtypes.Message{
		llmtypes.Text(llmtypes.RoleUser, "what's the weather"),
	}, []llmtypes.ToolSpec{{Name: "web_search"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Text != "checking" {
		t.Fatalf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "web_search" {
		t.Fatalf("call = %+v", call)
	}
	if string(call.Input) != `{"query":"weather"}` {
		t.Fatalf("input = %s", call.Input)
	}
}

func TestChatSendsToolResultBlocks(t *testing.T) {
	var captured json.RawMessage
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		captured = body.Messages
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn"}`))
	}))

	messages := []llmtypes.Message{
		llmtypes.Text(llmtypes.RoleUser, "question"),
		{Role: llmtypes.RoleAssistant, Parts: []llmtypes.Part{
			{Type: llmtypes.PartToolUse, ID: "toolu_1", Name: "echo", Input: json.RawMessage(`{}`)},
		}},
		{Role: llmtypes.RoleUser, Parts: []llmtypes.Part{
			{Type: llmtypes.PartToolResult, ToolUseID: "toolu_1", Content: "tool says hi"},
		}},
	}
	if _, err := client.Chat(context.Background(), "", messages, nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// The first message is a bare string; the structured ones decode as
	// block lists.
	var raw []json.RawMessage
	if err := json.Unmarshal(captured, &raw); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("wire message count = %d", len(raw))
	}

	type wireMessage struct {
		Role    string       `json:"role"`
		Content []apiContent `json:"content"`
	}
	var assistant, results wireMessage
	if err := json.Unmarshal(raw[1], &assistant); err != nil {
		t.Fatalf("unmarshal assistant message: %v", err)
	}
	if err := json.Unmarshal(raw[2], &results); err != nil {
		t.Fatalf("unmarshal results message: %v", err)
	}

	if assistant.Content[0].Type != "tool_use" || assistant.Content[0].ID != "toolu_1" {
		t.Fatalf("tool_use block = %+v", assistant.Content[0])
	}
	if results.Content[0].Type != "tool_result" || results.Content[0].ToolUseID != "toolu_1" || results.Content[0].Content != "tool says hi" {
		t.Fatalf("tool_result block = %+v", results.Content[0])
	}
}

func TestChatReportsAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))

	if _, err := client.Chat(context.Background(), "", []llmtypes.Message{
		llmtypes.Text(llmtypes.RoleUser, "hello"),
	}, nil); err == nil {
		t.Fatal("expected error on API failure")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := &config.Config{}
	cfg.Agent.Model = "claude-test"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error without api key")
	}
}
