// Package prompt assembles the system prompt and message sequence for one
// agent request.
package prompt

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	llmtypes "tinyclaw/pkg/llm/types"
	"tinyclaw/pkg/session"
)

const (
	// DefaultMemoryMaxBytes caps how much of the long-term memory document
	// is ever read into the system prompt.
	DefaultMemoryMaxBytes = 4096

	soulFile   = "SOUL.md"
	userFile   = "USER.md"
	memoryFile = "MEMORY.md"
)

const identityPreamble = `# TinyClaw

You are TinyClaw, a compact AI assistant running on a small always-on device.
You communicate through chat channels with strict message length limits.

Be helpful, accurate, and concise. Prefer short answers.

## Available Tools
- web_search: Search the web for current information.
- get_current_time: Get the current date and time. Always use this tool when the user asks about time or date.
- remember: Persist an important fact about the user to long-term memory.

Use tools when needed. Provide your final answer as plain text.
`

// Builder renders conversation context from file-backed documents, local
// history, and the optional cloud summary.
type Builder struct {
	dir            string
	memoryMaxBytes int
	log            *slog.Logger
}

// NewBuilder creates a context builder over a document directory.
// The directory may be empty or missing; absent documents are skipped.
func NewBuilder(dir string, memoryMaxBytes int, log *slog.Logger) *Builder {
	if memoryMaxBytes <= 0 {
		memoryMaxBytes = DefaultMemoryMaxBytes
	}
	if log == nil {
		log = slog.Default()
	}

	return &Builder{
		dir:            dir,
		memoryMaxBytes: memoryMaxBytes,
		log:            log.With("component", "prompt.builder"),
	}
}

// System concatenates the system prompt segments in fixed order: identity
// preamble, personality document, user profile document, capped long-term
// memory document, then the cloud summary. Missing documents are silently
// skipped, so identical inputs always produce identical output.
func (b *Builder) System(cloudSummary string) string {
	var sb strings.Builder
	sb.WriteString(identityPreamble)

	b.appendDocument(&sb, soulFile, "Personality", 0)
	b.appendDocument(&sb, userFile, "User Profile", 0)
	b.appendDocument(&sb, memoryFile, "Long-term Memory", b.memoryMaxBytes)

	if summary := strings.TrimSpace(cloudSummary); summary != "" {
		sb.WriteString("\n## Conversation Summary (from cloud)\n\n")
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	prompt := sb.String()
	b.log.Debug("System prompt assembled", "bytes", len(prompt))
	return prompt
}

// Messages converts stored history into model messages and appends the new
// user turn. A nil history yields a single-message sequence.
func (b *Builder) Messages(history []session.Turn, userText string) []llmtypes.Message {
	messages := make([]llmtypes.Message, 0, len(history)+1)
	for _, turn := range history {
		role := turn.Role
		if role != llmtypes.RoleAssistant {
			role = llmtypes.RoleUser
		}
		messages = append(messages, llmtypes.Text(role, turn.Content))
	}

	return append(messages, llmtypes.Text(llmtypes.RoleUser, userText))
}

// appendDocument reads one document and appends it under a section header.
// maxBytes of zero reads the whole file; otherwise content beyond the cap
// is never read.
func (b *Builder) appendDocument(sb *strings.Builder, name, header string, maxBytes int) {
	if b.dir == "" {
		return
	}

	f, err := os.Open(filepath.Join(b.dir, name))
	if err != nil {
		return
	}
	defer f.Close()

	var reader io.Reader = f
	if maxBytes > 0 {
		reader = io.LimitReader(f, int64(maxBytes))
	}

	content, err := io.ReadAll(reader)
	if err != nil || len(content) == 0 {
		return
	}

	sb.WriteString("\n## ")
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.Write(content)
	sb.WriteString("\n")
}
