// Package cloud synchronizes conversation history and summaries with a
// remote KV worker.
//
// Every operation is best-effort: network failures degrade to empty
// results and log lines, never errors on the answer path. The worker is
// pure storage; summary text is generated on-device and pushed up.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"tinyclaw/pkg/config"
)

const (
	summaryPath       = "/summary"
	savePath          = "/save"
	updateSummaryPath = "/update_summary"

	defaultTimeout = 5 * time.Second
)

// SummaryResult carries the worker's summarization bookkeeping alongside a
// fetched summary.
type SummaryResult struct {
	NeedsSummarize bool `json:"needs_summarize"`
	HistoryCount   int  `json:"history_count"`
}

// History is the remote KV history client.
type History struct {
	baseURL    string
	authToken  string
	channels   []string
	httpClient *http.Client
	log        *slog.Logger
}

// New builds the history client. An empty worker URL yields an
// unconfigured client whose calls are all no-ops.
func New(cfg config.CloudConfig, log *slog.Logger) *History {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	channels := cfg.Channels
	if len(channels) == 0 {
		channels = []string{"discord"}
	}

	return &History{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.WorkerURL), "/"),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		channels:   channels,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "cloud.history"),
	}
}

// Configured reports whether a worker URL is set. When false the agent
// runs in local-only mode and no network calls are made.
func (h *History) Configured() bool {
	return h != nil && h.baseURL != ""
}

// ChannelEnabled reports whether cloud sync applies to a channel.
func (h *History) ChannelEnabled(channel string) bool {
	return h.Configured() && slices.Contains(h.channels, channel)
}

type summaryResponse struct {
	Summary        string `json:"summary"`
	NeedsSummarize bool   `json:"needs_summarize"`
	HistoryCount   int    `json:"history_count"`
}

// Summary fetches the conversation summary for a chat. Any failure logs a
// warning and returns an empty summary with a zero result.
func (h *History) Summary(ctx context.Context, chatID string) (string, SummaryResult) {
	if !h.Configured() {
		return "", SummaryResult{}
	}

	requestURL := h.baseURL + summaryPath + "?user_id=" + url.QueryEscape(chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		h.log.Warn("Summary fetch failed", "chat_id", chatID, "error", err)
		return "", SummaryResult{}
	}
	h.authorize(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.log.Warn("Summary fetch failed", "chat_id", chatID, "error", err)
		return "", SummaryResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.log.Warn("Summary fetch failed", "chat_id", chatID, "status", resp.StatusCode)
		return "", SummaryResult{}
	}

	var parsed summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		h.log.Warn("Summary fetch failed", "chat_id", chatID, "error", err)
		return "", SummaryResult{}
	}

	return parsed.Summary, SummaryResult{
		NeedsSummarize: parsed.NeedsSummarize,
		HistoryCount:   parsed.HistoryCount,
	}
}

type saveRequest struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// SaveAsync posts one conversation turn from a detached goroutine. The
// caller is never blocked and the outcome is deliberately discarded; a
// failed save only leaves a log line.
func (h *History) SaveAsync(chatID, role, content string, timestamp int64) {
	if !h.Configured() {
		return
	}
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	go func() {
		body := saveRequest{UserID: chatID, Role: role, Content: content, Timestamp: timestamp}
		if err := h.post(context.Background(), savePath, body); err != nil {
			h.log.Warn("History save failed", "chat_id", chatID, "role", role, "error", err)
			return
		}
		h.log.Debug("History turn saved", "chat_id", chatID, "role", role)
	}()
}

type updateSummaryRequest struct {
	UserID  string `json:"user_id"`
	Summary string `json:"summary"`
}

// UpdateSummary pushes a freshly generated summary. Best-effort and
// synchronous; the caller decides whether the error is worth more than a
// log line.
func (h *History) UpdateSummary(ctx context.Context, chatID, summary string) error {
	if !h.Configured() {
		return nil
	}

	if err := h.post(ctx, updateSummaryPath, updateSummaryRequest{UserID: chatID, Summary: summary}); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (h *History) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("worker responded %d", resp.StatusCode)
	}
	return nil
}

func (h *History) authorize(req *http.Request) {
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
}
