package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tinyclaw/pkg/config"
)

const (
	braveSearchURL       = "https://api.search.brave.com/res/v1/web/search"
	defaultSearchResults = 3
	searchTimeout        = 10 * time.Second
)

// SearchTool queries the Brave web search API.
type SearchTool struct {
	apiKey     string
	maxResults int
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

type searchInput struct {
	Query string `json:"query"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewSearchTool builds the web search tool from search provider config.
func NewSearchTool(cfg config.SearchProviderConfig, log *slog.Logger) *SearchTool {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if log == nil {
		log = slog.Default()
	}

	return &SearchTool{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxResults: maxResults,
		endpoint:   braveSearchURL,
		httpClient: &http.Client{Timeout: searchTimeout},
		log:        log.With("component", "tools.search"),
	}
}

func (t *SearchTool) Name() string {
	return "web_search"
}

func (t *SearchTool) Description() string {
	return "Search the web for current information."
}

func (t *SearchTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"The search query."}},"required":["query"]}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) string {
	var parsed searchInput
	if err := json.Unmarshal(input, &parsed); err != nil || strings.TrimSpace(parsed.Query) == "" {
		return "Error: web_search requires a non-empty query"
	}
	if t.apiKey == "" {
		return "Error: web search is not configured"
	}

	results, err := t.search(ctx, strings.TrimSpace(parsed.Query))
	if err != nil {
		t.log.Warn("Web search failed", "error", err)
		return fmt.Sprintf("Error: search failed (%v)", err)
	}
	if results == "" {
		return "No results found."
	}

	return results
}

func (t *SearchTool) search(ctx context.Context, query string) (string, error) {
	requestURL := t.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var sb strings.Builder
	for i, result := range parsed.Web.Results {
		if i >= t.maxResults {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s\n%s\n%s", result.Title, result.URL, result.Description)
	}
	return sb.String(), nil
}
