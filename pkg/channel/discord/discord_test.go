package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tinyclaw/pkg/bus"
	"tinyclaw/pkg/config"
)

type signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &signer{private: private, public: public}
}

func (s *signer) request(t *testing.T, timestamp, body string) *http.Request {
	t.Helper()
	signature := ed25519.Sign(s.private, []byte(timestamp+body))

	req := httptest.NewRequest(http.MethodPost, interactionsPath, bytes.NewBufferString(body))
	req.Header.Set(headerSignature, hex.EncodeToString(signature))
	req.Header.Set(headerTimestamp, timestamp)
	return req
}

func newTestAdapter(t *testing.T, s *signer) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(config.DiscordConfig{
		AppID:     "app-1",
		PublicKey: hex.EncodeToString(s.public),
	}, nil)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func callbackType(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var payload struct {
		Type int `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode callback: %v", err)
	}
	return payload.Type
}

func TestPingGetsPong(t *testing.T) {
	s := newSigner(t)
	adapter := newTestAdapter(t, s)
	mb := bus.New(bus.DefaultQueueDepth)
	t.Cleanup(mb.Close)

	rec := httptest.NewRecorder()
	adapter.interactionsHandler(mb)(rec, s.request(t, "1700000000", `{"type":1}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := callbackType(t, rec); got != callbackPong {
		t.Fatalf("callback type = %d, want pong", got)
	}
}

func TestInvalidSignatureRejected(t *testing.T) {
	s := newSigner(t)
	adapter := newTestAdapter(t, s)
	mb := bus.New(bus.DefaultQueueDepth)
	t.Cleanup(mb.Close)

	req := s.request(t, "1700000000", `{"type":1}`)
	// Tamper with the body after signing.
	req.Body = http.NoBody
	req.ContentLength = 0

	rec := httptest.NewRecorder()
	adapter.interactionsHandler(mb)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCommandDefersAndQueues(t *testing.T) {
	s := newSigner(t)
	adapter := newTestAdapter(t, s)
	mb := bus.New(bus.DefaultQueueDepth)
	t.Cleanup(mb.Close)

	body := `{"type":2,"token":"interaction-token","data":{"name":"ask","options":[{"name":"message","value":"what time is it"}]},"member":{"user":{"id":"user-42"}}}`
	rec := httptest.NewRecorder()
	adapter.interactionsHandler(mb)(rec, s.request(t, "1700000000", body))

	if got := callbackType(t, rec); got != callbackDeferredMessage {
		t.Fatalf("callback type = %d, want deferred", got)
	}

	inbound, ok := mb.PopInbound(context.Background())
	if !ok {
		t.Fatal("expected a queued inbound message")
	}
	if inbound.Channel != "discord" || inbound.ChatID != "user-42" {
		t.Fatalf("routing = %q/%q", inbound.Channel, inbound.ChatID)
	}
	if inbound.Content != "what time is it" {
		t.Fatalf("content = %q", inbound.Content)
	}
	if inbound.Meta != "interaction-token" {
		t.Fatalf("meta = %q", inbound.Meta)
	}
}

func TestCommandRejectedWhenQueueFull(t *testing.T) {
	s := newSigner(t)
	adapter := newTestAdapter(t, s)
	mb := bus.New(1)
	t.Cleanup(mb.Close)
	if !mb.PushInbound(bus.InboundMessage{Content: "occupier"}) {
		t.Fatal("seed push should succeed")
	}

	body := `{"type":2,"token":"tok","data":{"name":"ask","options":[{"name":"message","value":"hello"}]},"user":{"id":"user-1"}}`
	rec := httptest.NewRecorder()
	adapter.interactionsHandler(mb)(rec, s.request(t, "1700000000", body))

	// An inline message, not a deferral the user would wait on forever.
	if got := callbackType(t, rec); got != callbackMessage {
		t.Fatalf("callback type = %d, want inline message", got)
	}
	if !strings.Contains(rec.Body.String(), "busy") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestCommandWithoutTextAnsweredInline(t *testing.T) {
	s := newSigner(t)
	adapter := newTestAdapter(t, s)
	mb := bus.New(bus.DefaultQueueDepth)
	t.Cleanup(mb.Close)

	body := `{"type":2,"token":"tok","data":{"name":"ask"},"user":{"id":"user-1"}}`
	rec := httptest.NewRecorder()
	adapter.interactionsHandler(mb)(rec, s.request(t, "1700000000", body))

	if got := callbackType(t, rec); got != callbackMessage {
		t.Fatalf("callback type = %d, want inline message", got)
	}
}

func TestUserIDResolution(t *testing.T) {
	var guild interaction
	if err := json.Unmarshal([]byte(`{"member":{"user":{"id":"guild-user"}}}`), &guild); err != nil {
		t.Fatalf("unmarshal guild interaction: %v", err)
	}
	if got := userID(guild); got != "guild-user" {
		t.Fatalf("guild user = %q", got)
	}

	var dm interaction
	if err := json.Unmarshal([]byte(`{"user":{"id":"dm-user"}}`), &dm); err != nil {
		t.Fatalf("unmarshal dm interaction: %v", err)
	}
	if got := userID(dm); got != "dm-user" {
		t.Fatalf("dm user = %q", got)
	}
}

func TestNewAdapterValidatesKey(t *testing.T) {
	if _, err := NewAdapter(config.DiscordConfig{AppID: "app", PublicKey: "zz"}, nil); err == nil {
		t.Fatal("expected error for non-hex public key")
	}
	if _, err := NewAdapter(config.DiscordConfig{AppID: "app", PublicKey: "aabb"}, nil); err == nil {
		t.Fatal("expected error for short public key")
	}
	if _, err := NewAdapter(config.DiscordConfig{PublicKey: strings.Repeat("ab", 32)}, nil); err == nil {
		t.Fatal("expected error for missing app id")
	}
}
