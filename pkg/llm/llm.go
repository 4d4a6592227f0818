// Package llm resolves the configured language-model client.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"tinyclaw/pkg/config"
	"tinyclaw/pkg/llm/anthropic"
	llmopenai "tinyclaw/pkg/llm/openai"
	llmtypes "tinyclaw/pkg/llm/types"
)

// Client sends one chat turn to a language model.
//
// A nil tools slice requests a tool-free completion (used by the
// summarization call).
type Client interface {
	Chat(ctx context.Context, system string, messages []llmtypes.Message, tools []llmtypes.ToolSpec) (llmtypes.Response, error)
}

// New resolves the provider named in agent configuration.
func New(cfg *config.Config) (Client, error) {
	providerID := cfg.Agent.Provider
	if providerID == "" {
		providerID = "anthropic"
	}

	slog.Default().With("component", "llm.factory").Debug("Resolving LLM client", "provider", providerID)

	switch providerID {
	case "anthropic":
		client, err := anthropic.New(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		client, err := llmopenai.New(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
