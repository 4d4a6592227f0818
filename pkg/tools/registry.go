// Package tools provides the tool registry the agent loop executes against.
//
// Tool execution never fails from the caller's perspective: errors are
// rendered as text output so the model can see and react to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	llmtypes "tinyclaw/pkg/llm/types"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) string
}

// Registry holds the tool catalog in registration order.
type Registry struct {
	order  []Tool
	byName map[string]Tool
	log    *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		byName: make(map[string]Tool),
		log:    log.With("component", "tools.registry"),
	}
}

// Register adds a tool. Registering the same name twice replaces the
// earlier entry in place.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	if _, exists := r.byName[tool.Name()]; !exists {
		r.order = append(r.order, tool)
	} else {
		for i, existing := range r.order {
			if existing.Name() == tool.Name() {
				r.order[i] = tool
				break
			}
		}
	}
	r.byName[tool.Name()] = tool
}

// Catalog lists tool specs in registration order, in the shape sent
// verbatim to the model.
func (r *Registry) Catalog() []llmtypes.ToolSpec {
	specs := make([]llmtypes.ToolSpec, 0, len(r.order))
	for _, tool := range r.order {
		specs = append(specs, llmtypes.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return specs
}

// Execute runs one tool synchronously and always returns output text.
// Unknown tools and tool errors come back as error-describing strings.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) string {
	tool, ok := r.byName[name]
	if !ok {
		r.log.Warn("Unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	startedAt := time.Now()
	output := tool.Execute(ctx, input)
	r.log.Debug("Tool executed", "tool", name, "duration_ms", time.Since(startedAt).Milliseconds(), "output_length", len(output))
	return output
}
