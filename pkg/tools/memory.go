package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const memoryFileName = "MEMORY.md"

// MemoryTool appends facts to the long-term memory document read back into
// every system prompt. The document is held under a byte ceiling: facts
// that would push it past the ceiling are rejected, never silently clipped.
type MemoryTool struct {
	dir      string
	maxBytes int
	log      *slog.Logger
}

type rememberInput struct {
	Fact string `json:"fact"`
}

// NewMemoryTool builds the remember tool over the document directory.
func NewMemoryTool(dir string, maxBytes int, log *slog.Logger) *MemoryTool {
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	if log == nil {
		log = slog.Default()
	}

	return &MemoryTool{
		dir:      dir,
		maxBytes: maxBytes,
		log:      log.With("component", "tools.memory"),
	}
}

func (t *MemoryTool) Name() string {
	return "remember"
}

func (t *MemoryTool) Description() string {
	return "Persist an important fact about the user to long-term memory."
}

func (t *MemoryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"fact":{"type":"string","description":"The fact to remember, one short sentence."}},"required":["fact"]}`)
}

func (t *MemoryTool) Execute(_ context.Context, input json.RawMessage) string {
	var parsed rememberInput
	if err := json.Unmarshal(input, &parsed); err != nil || strings.TrimSpace(parsed.Fact) == "" {
		return "Error: remember requires a non-empty fact"
	}
	if t.dir == "" {
		return "Error: long-term memory is not configured"
	}

	line := "- " + strings.TrimSpace(parsed.Fact) + "\n"
	path := filepath.Join(t.dir, memoryFileName)

	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.log.Warn("Memory file unreadable", "error", err)
		return fmt.Sprintf("Error: memory file unreadable (%v)", err)
	}
	if len(current)+len(line) > t.maxBytes {
		return fmt.Sprintf("Error: memory is full (%d byte limit); forget something first", t.maxBytes)
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Sprintf("Error: cannot create memory directory (%v)", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Sprintf("Error: cannot open memory file (%v)", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Sprintf("Error: cannot write memory file (%v)", err)
	}

	t.log.Debug("Fact remembered", "bytes", len(line))
	return "Remembered."
}
