package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"agent": {"provider": "anthropic", "model": "claude-test", "max_tokens": 1024},
		"session": {"max_users": 8, "max_exchanges": 3},
		"bus": {"queue_depth": 4}
	}`)
	t.Setenv("TINYCLAW_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Agent.Provider != "anthropic" || cfg.Agent.Model != "claude-test" {
		t.Fatalf("agent config = %+v", cfg.Agent)
	}
	if cfg.Session.MaxUsers != 8 || cfg.Bus.QueueDepth != 4 {
		t.Fatalf("session/bus config = %+v %+v", cfg.Session, cfg.Bus)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("TINYCLAW_CONFIG", "")
	t.Chdir(t.TempDir())

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when config.json is absent")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"agent": {"provider": "anthropic", "model": "claude-test"},
		"channels": {"discord": {"enabled": true, "app_id": "file-app"}},
		"cloud": {"worker_url": "https://file.example"}
	}`)
	t.Setenv("TINYCLAW_CONFIG", path)
	t.Setenv("DISCORD_APP_ID", "env-app")
	t.Setenv("DISCORD_PUBLIC_KEY", "aabbcc")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_ALLOW_FROM", "123, 456,,789")
	t.Setenv("TINYCLAW_WORKER_URL", "https://env.example")
	t.Setenv("TINYCLAW_WORKER_TOKEN", "env-secret")
	t.Setenv("BRAVE_API_KEY", "env-brave")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Channels.Discord.AppID != "env-app" {
		t.Fatalf("app id = %q", cfg.Channels.Discord.AppID)
	}
	if cfg.Channels.Discord.PublicKey != "aabbcc" {
		t.Fatalf("public key = %q", cfg.Channels.Discord.PublicKey)
	}
	if cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 3 || got[0] != "123" || got[2] != "789" {
		t.Fatalf("allow_from = %v", got)
	}
	if cfg.Cloud.WorkerURL != "https://env.example" || cfg.Cloud.AuthToken != "env-secret" {
		t.Fatalf("cloud config = %+v", cfg.Cloud)
	}
	if cfg.Tools.Web.Brave.APIKey != "env-brave" {
		t.Fatalf("brave key = %q", cfg.Tools.Web.Brave.APIKey)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("parseCSV = %v", got)
	}

	if got := parseCSV(" , ,"); len(got) != 0 {
		t.Fatalf("parseCSV of blanks = %v", got)
	}
}

func TestFindConfigPathPrefersEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)
	t.Setenv("TINYCLAW_CONFIG", path)

	got, err := findConfigPath()
	if err != nil {
		t.Fatalf("find config path: %v", err)
	}
	if got != path {
		t.Fatalf("path = %q, want %q", got, path)
	}
}

func TestFindConfigPathRejectsBadEnv(t *testing.T) {
	t.Setenv("TINYCLAW_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := findConfigPath(); err == nil {
		t.Fatal("expected error for dangling TINYCLAW_CONFIG")
	}
}

func TestFindConfigPathFallsBackToCwd(t *testing.T) {
	t.Setenv("TINYCLAW_CONFIG", "")
	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	t.Chdir(dir)

	got, err := findConfigPath()
	if err != nil {
		t.Fatalf("find config path: %v", err)
	}
	if filepath.Base(got) != "config.json" {
		t.Fatalf("path = %q", got)
	}
}
