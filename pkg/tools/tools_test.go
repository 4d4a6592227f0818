package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tinyclaw/pkg/config"
)

func TestRegistryCatalogPreservesOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewTimeTool())
	r.Register(NewMemoryTool(t.TempDir(), 0, nil))

	catalog := r.Catalog()
	if len(catalog) != 2 {
		t.Fatalf("catalog length = %d, want 2", len(catalog))
	}
	if catalog[0].Name != "get_current_time" || catalog[1].Name != "remember" {
		t.Fatalf("catalog order = %q, %q", catalog[0].Name, catalog[1].Name)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(nil)

	output := r.Execute(context.Background(), "nonexistent", nil)
	if !strings.Contains(output, "unknown tool") {
		t.Fatalf("output = %q, want unknown-tool error text", output)
	}
}

func TestRegistryReplacesDuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewTimeTool())
	r.Register(NewTimeTool())

	if catalog := r.Catalog(); len(catalog) != 1 {
		t.Fatalf("catalog length = %d, want 1", len(catalog))
	}
}

func TestTimeToolFormatsFixedClock(t *testing.T) {
	tool := NewTimeTool()
	tool.now = func() time.Time {
		return time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	}

	output := tool.Execute(context.Background(), nil)
	want := "Saturday, March 14, 2026 09:26:53 UTC"
	if output != want {
		t.Fatalf("output = %q, want %q", output, want)
	}
}

func TestMemoryToolAppendsFact(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool(dir, 0, nil)

	output := tool.Execute(context.Background(), json.RawMessage(`{"fact":"likes green tea"}`))
	if output != "Remembered." {
		t.Fatalf("output = %q", output)
	}

	content, err := os.ReadFile(filepath.Join(dir, "MEMORY.md"))
	if err != nil {
		t.Fatalf("read memory file: %v", err)
	}
	if string(content) != "- likes green tea\n" {
		t.Fatalf("memory content = %q", string(content))
	}
}

func TestMemoryToolRejectsWhenFull(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte(strings.Repeat("x", 60)), 0o644); err != nil {
		t.Fatalf("seed memory file: %v", err)
	}

	tool := NewMemoryTool(dir, 64, nil)
	output := tool.Execute(context.Background(), json.RawMessage(`{"fact":"one more fact"}`))
	if !strings.Contains(output, "memory is full") {
		t.Fatalf("output = %q, want full-memory error", output)
	}

	content, err := os.ReadFile(filepath.Join(dir, "MEMORY.md"))
	if err != nil {
		t.Fatalf("read memory file: %v", err)
	}
	if len(content) != 60 {
		t.Fatalf("memory file grew to %d bytes", len(content))
	}
}

func TestMemoryToolRejectsEmptyFact(t *testing.T) {
	tool := NewMemoryTool(t.TempDir(), 0, nil)

	output := tool.Execute(context.Background(), json.RawMessage(`{"fact":"  "}`))
	if !strings.Contains(output, "non-empty fact") {
		t.Fatalf("output = %q", output)
	}
}

func TestSearchToolFormatsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "test-key" {
			t.Errorf("subscription token = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "go generics" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"First","url":"https://a.example","description":"alpha"},
			{"title":"Second","url":"https://b.example","description":"beta"},
			{"title":"Third","url":"https://c.example","description":"gamma"}
		]}}`))
	}))
	t.Cleanup(server.Close)

	tool := NewSearchTool(config.SearchProviderConfig{APIKey: "test-key", MaxResults: 2}, nil)
	tool.endpoint = server.URL

	output := tool.Execute(context.Background(), json.RawMessage(`{"query":"go generics"}`))
	if !strings.Contains(output, "First") || !strings.Contains(output, "Second") {
		t.Fatalf("output missing results: %q", output)
	}
	if strings.Contains(output, "Third") {
		t.Fatalf("output exceeds max results: %q", output)
	}
}

func TestSearchToolReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	tool := NewSearchTool(config.SearchProviderConfig{APIKey: "test-key"}, nil)
	tool.endpoint = server.URL

	output := tool.Execute(context.Background(), json.RawMessage(`{"query":"anything"}`))
	if !strings.HasPrefix(output, "Error:") {
		t.Fatalf("output = %q, want error text", output)
	}
}

func TestSearchToolWithoutKey(t *testing.T) {
	tool := NewSearchTool(config.SearchProviderConfig{}, nil)

	output := tool.Execute(context.Background(), json.RawMessage(`{"query":"anything"}`))
	if !strings.Contains(output, "not configured") {
		t.Fatalf("output = %q", output)
	}
}
