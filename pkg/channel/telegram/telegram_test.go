package telegram

import (
	"strings"
	"testing"

	"tinyclaw/pkg/config"
)

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{}, nil); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewAdapter(config.TelegramConfig{Token: "   "}, nil); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestSenderAllowedWithoutAllowList(t *testing.T) {
	a := &Adapter{}

	if !a.senderAllowed("12345") {
		t.Fatal("empty allow list should accept all senders")
	}
}

func TestSenderAllowedWithAllowList(t *testing.T) {
	a := &Adapter{allowFrom: allowFromSet([]string{" 111 ", "222"})}

	if !a.senderAllowed("111") {
		t.Fatal("listed sender should be allowed")
	}
	if !a.senderAllowed(" 222 ") {
		t.Fatal("listed sender should be allowed after trimming")
	}
	if a.senderAllowed("333") {
		t.Fatal("unlisted sender should be rejected")
	}
}

func TestAllowFromSetIgnoresBlanks(t *testing.T) {
	if set := allowFromSet([]string{" ", ""}); set != nil {
		t.Fatalf("set = %v, want nil", set)
	}
	if set := allowFromSet(nil); set != nil {
		t.Fatalf("set = %v, want nil", set)
	}
}

func TestPreviewTextTruncates(t *testing.T) {
	long := strings.Repeat("a", messagePreviewLimit+50)
	preview := previewText(long)
	if len(preview) != messagePreviewLimit+3 {
		t.Fatalf("preview length = %d", len(preview))
	}
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("preview = %q", preview)
	}

	if got := previewText(" short "); got != "short" {
		t.Fatalf("preview = %q", got)
	}
}
