// Package gateway assembles the runtime: bus, session store, agent worker,
// egress dispatcher, channel adapters, and the status endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tinyclaw/pkg/agent"
	"tinyclaw/pkg/bus"
	"tinyclaw/pkg/channel"
	"tinyclaw/pkg/cloud"
	"tinyclaw/pkg/config"
	"tinyclaw/pkg/llm"
	"tinyclaw/pkg/prompt"
	"tinyclaw/pkg/session"
	"tinyclaw/pkg/tools"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	deliveryTimeout = 15 * time.Second
)

// Service owns every long-running component of the agent runtime.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.MessageBus
	engine   *agent.Engine
	channels []channel.Adapter
	byName   map[string]channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	CloudSync     bool                    `json:"cloud_sync"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService constructs the full pipeline behind the given adapters.
func NewService(cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := llm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize llm client: %w", err)
	}

	mb := bus.New(cfg.Bus.QueueDepth)
	store := session.New(cfg.Session.MaxUsers, cfg.Session.MaxExchanges, cfg.Session.MaxTurnLen, log)
	builder := prompt.NewBuilder(cfg.Memory.Dir, cfg.Memory.MaxBytes, log)
	history := cloud.New(cfg.Cloud, log)

	registry := tools.NewRegistry(log)
	registry.Register(tools.NewTimeTool())
	if cfg.Tools.Web.Brave.Enabled {
		registry.Register(tools.NewSearchTool(cfg.Tools.Web.Brave, log))
	}
	registry.Register(tools.NewMemoryTool(cfg.Memory.Dir, cfg.Memory.MaxBytes, log))

	engine := agent.New(cfg.Agent, client, registry, store, builder, history, mb, log)

	byName := make(map[string]channel.Adapter, len(adapters))
	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           mb,
		engine:        engine,
		channels:      adapters,
		byName:        byName,
		channelStates: channelStates,
	}, nil
}

// Run starts every worker and blocks until the context ends or a component
// fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	go s.engine.Run(ctx)
	go s.dispatchOutbound(ctx)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func(adapter channel.Adapter) {
			err := adapter.Run(ctx, s.bus)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}(adapter)
	}

	select {
	case <-ctx.Done():
		s.bus.Close()
		return nil
	case err := <-serverErrors:
		s.bus.Close()
		return err
	case err := <-errCh:
		s.bus.Close()
		return err
	}
}

// dispatchOutbound is the egress worker: it pops responses and hands each
// to the adapter named on the message. Delivery failures are logged and
// the message is dropped; there is no retry queue to overflow.
func (s *Service) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := s.bus.PopOutbound(ctx)
		if !ok {
			return
		}

		adapter, exists := s.byName[msg.Channel]
		if !exists {
			s.log.Warn("Dropping response for unknown channel", "channel", msg.Channel, "chat_id", msg.ChatID)
			continue
		}

		deliverCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := adapter.Deliver(deliverCtx, msg)
		cancel()
		if err != nil {
			s.log.Error("Delivery failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		CloudSync:     strings.TrimSpace(s.cfg.Cloud.WorkerURL) != "",
		Channels:      channels,
	}
}

// isReady reports whether at least one channel adapter is still running.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
