package types

import "encoding/json"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part content types.
const (
	PartText       = "text"
	PartToolUse    = "tool_use"
	PartToolResult = "tool_result"
)

// Part is one content block inside a Message: free text, a model-initiated
// tool call, or the result fed back for one.
type Part struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// Message is one role-tagged entry in the conversation sent to the model.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text builds a plain text message.
func Text(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}

// PlainText joins the text parts of a message.
func (m Message) PlainText() string {
	var out string
	for _, part := range m.Parts {
		if part.Type != PartText || part.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += part.Text
	}
	return out
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolSpec describes one tool in the catalog sent to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Response is the normalized model reply: optional free text plus zero or
// more tool calls. No tool calls means the text is the final answer.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}
