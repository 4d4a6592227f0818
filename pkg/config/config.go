package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envDiscordAppID      = "DISCORD_APP_ID"
	envDiscordPublicKey  = "DISCORD_PUBLIC_KEY"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envWorkerURL         = "TINYCLAW_WORKER_URL"
	envWorkerToken       = "TINYCLAW_WORKER_TOKEN"
	envBraveAPIKey       = "BRAVE_API_KEY"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Session   SessionConfig   `json:"session"`
	Bus       BusConfig       `json:"bus"`
	Memory    MemoryConfig    `json:"memory"`
	Cloud     CloudConfig     `json:"cloud"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Tools     ToolsConfig     `json:"tools,omitempty"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// AgentConfig describes the tool-loop engine settings.
type AgentConfig struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	MaxTokens         int    `json:"max_tokens"`
	MaxToolIterations int    `json:"max_tool_iterations"`
	MaxToolCalls      int    `json:"max_tool_calls"`
}

// SessionConfig bounds the in-memory conversation ring store.
type SessionConfig struct {
	MaxUsers     int `json:"max_users"`
	MaxExchanges int `json:"max_exchanges"`
	MaxTurnLen   int `json:"max_turn_len"`
}

// BusConfig bounds the inter-stage message queues.
type BusConfig struct {
	QueueDepth int `json:"queue_depth"`
}

// MemoryConfig locates the file-backed personality, profile, and long-term
// memory documents used during system prompt assembly.
type MemoryConfig struct {
	Dir      string `json:"dir"`
	MaxBytes int    `json:"max_bytes"`
}

// CloudConfig configures the remote KV history worker.
//
// An empty WorkerURL disables cloud sync entirely; the agent then runs in
// local-only mode against the session ring alone.
type CloudConfig struct {
	WorkerURL      string   `json:"worker_url"`
	AuthToken      string   `json:"auth_token"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Channels       []string `json:"channels"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	Anthropic AnthropicProviderConfig `json:"anthropic"`
	OpenAI    OpenAIProviderConfig    `json:"openai"`
}

// AnthropicProviderConfig configures the Anthropic messages-API client.
type AnthropicProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI chat-completions client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	APIKeyEnv             string `json:"api_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

// DiscordConfig configures the Discord interactions endpoint.
type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	AppID      string `json:"app_id"`
	PublicKey  string `json:"public_key"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	MaxRespLen int    `json:"max_resp_len"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// ToolsConfig groups optional tool-system configuration.
type ToolsConfig struct {
	Web WebToolsConfig `json:"web"`
}

// WebToolsConfig configures web/search providers for tool usage.
type WebToolsConfig struct {
	Brave SearchProviderConfig `json:"brave"`
}

// SearchProviderConfig configures one external search provider.
type SearchProviderConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	MaxResults int    `json:"max_results"`
}

// GatewayConfig configures HTTP health endpoint bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if appID := strings.TrimSpace(os.Getenv(envDiscordAppID)); appID != "" {
		cfg.Channels.Discord.AppID = appID
	}
	if publicKey := strings.TrimSpace(os.Getenv(envDiscordPublicKey)); publicKey != "" {
		cfg.Channels.Discord.PublicKey = publicKey
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if workerURL := strings.TrimSpace(os.Getenv(envWorkerURL)); workerURL != "" {
		cfg.Cloud.WorkerURL = workerURL
	}
	if workerToken := strings.TrimSpace(os.Getenv(envWorkerToken)); workerToken != "" {
		cfg.Cloud.AuthToken = workerToken
	}

	if braveKey := strings.TrimSpace(os.Getenv(envBraveAPIKey)); braveKey != "" {
		cfg.Tools.Web.Brave.APIKey = braveKey
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TINYCLAW_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("TINYCLAW_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("TINYCLAW_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
