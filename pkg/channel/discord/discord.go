// Package discord serves the Discord interactions webhook and delivers
// responses through interaction follow-ups.
//
// Discord pushes interactions over HTTPS and expects an acknowledgment
// within a hard deadline, so ingress immediately defers the response and
// hands the request to the bus. The interaction token rides along on the
// message and addresses the follow-up webhook on delivery.
package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tinyclaw/pkg/bus"
	"tinyclaw/pkg/config"
)

const (
	channelName = "discord"

	// DefaultMaxRespLen clips follow-up content under Discord's 2000
	// character message limit with headroom for markdown expansion.
	DefaultMaxRespLen = 1900

	interactionsPath = "/interactions"
	webhookBaseURL   = "https://discord.com/api/v10/webhooks"

	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"
)

// Interaction callback types from the Discord API.
const (
	interactionPing           = 1
	interactionCommand        = 2
	callbackPong              = 1
	callbackMessage           = 4
	callbackDeferredMessage   = 5
	maxInteractionBodyBytes = 1 << 20
)

const busyAnswer = "I'm busy with another request right now, please try again in a moment."

const shutdownGrace = 5 * time.Second

// Adapter runs the interactions endpoint and the follow-up delivery path.
type Adapter struct {
	cfg        config.DiscordConfig
	publicKey  ed25519.PublicKey
	maxRespLen int
	httpClient *http.Client
	log        *slog.Logger
}

// NewAdapter validates Discord configuration and constructs the adapter.
func NewAdapter(cfg config.DiscordConfig, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errors.New("channels.discord.app_id is required")
	}

	rawKey, err := hex.DecodeString(strings.TrimSpace(cfg.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("decode channels.discord.public_key: %w", err)
	}
	if len(rawKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("channels.discord.public_key must be %d bytes, got %d", ed25519.PublicKeySize, len(rawKey))
	}

	maxRespLen := cfg.MaxRespLen
	if maxRespLen <= 0 {
		maxRespLen = DefaultMaxRespLen
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:        cfg,
		publicKey:  ed25519.PublicKey(rawKey),
		maxRespLen: maxRespLen,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With("component", "channel.discord"),
	}, nil
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run serves the interactions endpoint until the context ends.
func (a *Adapter) Run(ctx context.Context, mb *bus.MessageBus) error {
	if mb == nil {
		return errors.New("bus is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+interactionsPath, a.interactionsHandler(mb))

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Discord channel started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("Interactions server shutdown failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("interactions server: %w", err)
		}
		return nil
	}
}

type interaction struct {
	Type  int    `json:"type"`
	Token string `json:"token"`
	Data  struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"options"`
	} `json:"data"`
	Member *struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"member"`
	User *struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (a *Adapter) interactionsHandler(mb *bus.MessageBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		if !a.verifySignature(r.Header.Get(headerSignature), r.Header.Get(headerTimestamp), body) {
			a.log.Warn("Rejected interaction with invalid signature")
			http.Error(w, "invalid request signature", http.StatusUnauthorized)
			return
		}

		var in interaction
		if err := json.Unmarshal(body, &in); err != nil {
			http.Error(w, "invalid interaction payload", http.StatusBadRequest)
			return
		}

		switch in.Type {
		case interactionPing:
			writeCallback(w, map[string]any{"type": callbackPong})
		case interactionCommand:
			a.handleCommand(w, in, mb)
		default:
			a.log.Debug("Ignoring unsupported interaction", "type", in.Type)
			writeCallback(w, map[string]any{"type": callbackDeferredMessage})
		}
	}
}

// handleCommand acknowledges a slash command with a deferred response and
// queues the prompt. The queue being full is answered inline so the user
// is not left watching a spinner that will never resolve.
func (a *Adapter) handleCommand(w http.ResponseWriter, in interaction, mb *bus.MessageBus) {
	content := commandText(in)
	if content == "" {
		writeCallback(w, map[string]any{
			"type": callbackMessage,
			"data": map[string]any{"content": "Please include a message."},
		})
		return
	}

	inbound := bus.InboundMessage{
		Channel: channelName,
		ChatID:  userID(in),
		Content: content,
		Meta:    in.Token,
		Metadata: map[string]string{
			"command": in.Data.Name,
		},
	}

	if !mb.PushInbound(inbound) {
		a.log.Warn("Inbound queue full, rejecting interaction", "chat_id", inbound.ChatID)
		writeCallback(w, map[string]any{
			"type": callbackMessage,
			"data": map[string]any{"content": busyAnswer},
		})
		return
	}

	a.log.Info("Received interaction", "chat_id", inbound.ChatID, "command", in.Data.Name, "content_length", len(content))
	writeCallback(w, map[string]any{"type": callbackDeferredMessage})
}

// Deliver edits the deferred interaction response with the final answer,
// clipped to the configured length.
func (a *Adapter) Deliver(ctx context.Context, msg bus.OutboundMessage) error {
	token := strings.TrimSpace(msg.Meta)
	if token == "" {
		return errors.New("outbound discord message is missing an interaction token")
	}

	content := msg.Content
	if len(content) > a.maxRespLen {
		content = content[:a.maxRespLen]
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal follow-up: %w", err)
	}

	followUpURL := fmt.Sprintf("%s/%s/%s/messages/@original", webhookBaseURL, a.cfg.AppID, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, followUpURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create follow-up request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send follow-up: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord follow-up responded %d", resp.StatusCode)
	}

	a.log.Info("Delivered response", "chat_id", msg.ChatID, "content_length", len(content))
	return nil
}

// verifySignature checks the request against the application public key,
// as Discord requires before any interaction is processed.
func (a *Adapter) verifySignature(signatureHex, timestamp string, body []byte) bool {
	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}

	signed := make([]byte, 0, len(timestamp)+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, body...)
	return ed25519.Verify(a.publicKey, signed, signature)
}

// commandText extracts the first string option of a slash command.
func commandText(in interaction) string {
	for _, option := range in.Data.Options {
		if value, ok := option.Value.(string); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// userID resolves the invoking user, which differs between guild and DM
// interactions.
func userID(in interaction) string {
	if in.Member != nil && in.Member.User.ID != "" {
		return in.Member.User.ID
	}
	if in.User != nil {
		return in.User.ID
	}
	return ""
}

func writeCallback(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
