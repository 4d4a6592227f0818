package tools

import (
	"context"
	"encoding/json"
	"time"
)

// TimeTool reports the current date and time.
type TimeTool struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewTimeTool builds the clock tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

func (t *TimeTool) Name() string {
	return "get_current_time"
}

func (t *TimeTool) Description() string {
	return "Get the current date and time."
}

func (t *TimeTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *TimeTool) Execute(_ context.Context, _ json.RawMessage) string {
	return t.now().Format("Monday, January 2, 2006 15:04:05 MST")
}
