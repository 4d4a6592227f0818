// Package agent runs the reason-and-act loop that turns inbound messages
// into answers.
//
// A single worker goroutine serializes every request. Peak memory stays
// flat regardless of chat volume, and the session store and memory
// documents never see concurrent writers from the answer path.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tinyclaw/pkg/bus"
	"tinyclaw/pkg/cloud"
	"tinyclaw/pkg/config"
	"tinyclaw/pkg/llm"
	llmtypes "tinyclaw/pkg/llm/types"
	"tinyclaw/pkg/prompt"
	"tinyclaw/pkg/session"
	"tinyclaw/pkg/tools"
)

const (
	// DefaultMaxToolIterations caps round trips to the model per request.
	DefaultMaxToolIterations = 5
	// DefaultMaxToolCalls caps executed tool calls per model response;
	// calls past the cap are answered with an error result.
	DefaultMaxToolCalls = 4

	// localHistoryTurns is how many stored turns accompany a request when
	// cloud sync is off for the channel. With sync on, the cloud summary
	// covers the long tail and the full ring is sent.
	localHistoryTurns = 4

	fallbackAnswer = "Sorry, I couldn't process your request."
)

const summarizerPrompt = `You are a concise summarizer. Summarize the conversation in 3-5 sentences focusing on key facts and user preferences. Write in third person about 'the user'. Reply with only the summary text, no extra commentary.`

// Engine is the single agent worker.
type Engine struct {
	bus      *bus.MessageBus
	store    *session.Store
	builder  *prompt.Builder
	client   llm.Client
	registry *tools.Registry
	history  *cloud.History
	log      *slog.Logger

	maxIterations int
	maxToolCalls  int

	// now is swappable in tests; cloud save timestamps derive from it.
	now func() time.Time
}

// New wires the engine. Non-positive caps fall back to package defaults.
func New(cfg config.AgentConfig, client llm.Client, registry *tools.Registry, store *session.Store, builder *prompt.Builder, history *cloud.History, mb *bus.MessageBus, log *slog.Logger) *Engine {
	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxToolIterations
	}
	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = DefaultMaxToolCalls
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		bus:           mb,
		store:         store,
		builder:       builder,
		client:        client,
		registry:      registry,
		history:       history,
		log:           log.With("component", "agent.engine"),
		maxIterations: maxIterations,
		maxToolCalls:  maxToolCalls,
		now:           time.Now,
	}
}

// Run consumes inbound messages until the context ends or the bus closes.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("Agent worker started", "max_tool_iterations", e.maxIterations, "max_tool_calls", e.maxToolCalls)

	for {
		msg, ok := e.bus.PopInbound(ctx)
		if !ok {
			e.log.Info("Agent worker stopped")
			return
		}
		e.Handle(ctx, msg)
	}
}

// Handle answers one inbound message end to end: context assembly, the
// tool loop, session bookkeeping, outbound push, and cloud sync.
func (e *Engine) Handle(ctx context.Context, msg bus.InboundMessage) {
	startedAt := e.now()
	sessionKey := msg.Channel + ":" + msg.ChatID
	cloudEnabled := e.history.ChannelEnabled(msg.Channel)

	var summary string
	var syncState cloud.SummaryResult
	if cloudEnabled {
		summary, syncState = e.history.Summary(ctx, msg.ChatID)
	}

	historyLimit := localHistoryTurns
	if cloudEnabled {
		historyLimit = 0
	}

	system := e.builder.System(summary)
	messages := e.builder.Messages(e.store.History(sessionKey, historyLimit), msg.Content)

	answer := e.react(ctx, system, messages)
	if answer == "" {
		answer = fallbackAnswer
	}

	e.store.Append(sessionKey, session.RoleUser, msg.Content)
	e.store.Append(sessionKey, session.RoleAssistant, answer)

	out := bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  answer,
		Meta:     msg.Meta,
		Metadata: msg.Metadata,
	}
	if !e.bus.PushOutbound(out) {
		e.log.Warn("Outbound queue full, dropping response", "channel", msg.Channel, "chat_id", msg.ChatID)
	}

	if cloudEnabled {
		// The assistant turn gets the next second so the worker's
		// timestamp ordering never ties.
		ts := e.now().Unix()
		e.history.SaveAsync(msg.ChatID, session.RoleUser, msg.Content, ts)
		e.history.SaveAsync(msg.ChatID, session.RoleAssistant, answer, ts+1)

		if syncState.NeedsSummarize {
			e.resummarize(ctx, msg.ChatID, sessionKey, summary)
		}
	}

	e.log.Info("Request handled",
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"answer_length", len(answer))
}

// react runs the tool loop and returns the model's final text, or an empty
// string when the loop fails or exhausts its iteration budget.
func (e *Engine) react(ctx context.Context, system string, messages []llmtypes.Message) string {
	catalog := e.registry.Catalog()

	for iteration := 0; iteration < e.maxIterations; iteration++ {
		resp, err := e.client.Chat(ctx, system, messages, catalog)
		if err != nil {
			e.log.Error("Model request failed", "iteration", iteration, "error", err)
			return ""
		}

		if len(resp.ToolCalls) == 0 {
			return strings.TrimSpace(resp.Text)
		}

		e.log.Debug("Model requested tools", "iteration", iteration, "tool_calls", len(resp.ToolCalls))
		messages = append(messages, assistantTurn(resp))
		messages = append(messages, e.executeCalls(ctx, resp.ToolCalls))
	}

	e.log.Warn("Tool iteration budget exhausted", "max_tool_iterations", e.maxIterations)
	return ""
}

// executeCalls runs requested tools in order and packs their results into
// one user message. Calls past the per-response cap are not executed; the
// model sees an error result for them instead of silence, which providers
// require for every issued call ID.
func (e *Engine) executeCalls(ctx context.Context, calls []llmtypes.ToolCall) llmtypes.Message {
	parts := make([]llmtypes.Part, 0, len(calls))
	for i, call := range calls {
		var output string
		if i < e.maxToolCalls {
			output = e.registry.Execute(ctx, call.Name, call.Input)
		} else {
			e.log.Warn("Tool call budget exhausted", "tool", call.Name, "max_tool_calls", e.maxToolCalls)
			output = "Error: too many tool calls in one response"
		}

		parts = append(parts, llmtypes.Part{
			Type:      llmtypes.PartToolResult,
			ToolUseID: call.ID,
			Content:   output,
		})
	}

	return llmtypes.Message{Role: llmtypes.RoleUser, Parts: parts}
}

// assistantTurn rebuilds the model's response as a history message so the
// next iteration sees its own text and tool calls verbatim.
func assistantTurn(resp llmtypes.Response) llmtypes.Message {
	parts := make([]llmtypes.Part, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		parts = append(parts, llmtypes.Part{Type: llmtypes.PartText, Text: resp.Text})
	}
	for _, call := range resp.ToolCalls {
		input := call.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		parts = append(parts, llmtypes.Part{
			Type:  llmtypes.PartToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: input,
		})
	}

	return llmtypes.Message{Role: llmtypes.RoleAssistant, Parts: parts}
}

// resummarize condenses the prior summary plus the local ring into a fresh
// summary and pushes it to the worker. Failures only log; the next request
// will be asked to summarize again.
func (e *Engine) resummarize(ctx context.Context, chatID, sessionKey, priorSummary string) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Previous summary:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Recent conversation:\n")
	for _, turn := range e.store.History(sessionKey, 0) {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}

	resp, err := e.client.Chat(ctx, summarizerPrompt, []llmtypes.Message{
		llmtypes.Text(llmtypes.RoleUser, sb.String()),
	}, nil)
	if err != nil {
		e.log.Warn("Summarization failed", "chat_id", chatID, "error", err)
		return
	}

	newSummary := strings.TrimSpace(resp.Text)
	if newSummary == "" {
		e.log.Warn("Summarization produced empty text", "chat_id", chatID)
		return
	}

	if err := e.history.UpdateSummary(ctx, chatID, newSummary); err != nil {
		e.log.Warn("Summary upload failed", "chat_id", chatID, "error", err)
		return
	}
	e.log.Info("Conversation summary refreshed", "chat_id", chatID, "summary_length", len(newSummary))
}
