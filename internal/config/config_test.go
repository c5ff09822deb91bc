package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: chatui
  name: chatui_prod

chatlog:
  base_url: http://127.0.0.1:5030
  timeout_sec: 20

llm:
  default_model: gpt-4o
  timeout_sec: 120
  max_attempts: 3
  retry_delay_sec: 2
  providers:
    openai:
      api_key: sk-file
      base_url: https://proxy.example.com/v1

pipeline:
  room_interval_sec: 1
  fetch_concurrency: 2

reports:
  s3:
    bucket: chat-reports
    endpoint: http://minio:9000

server:
  port: 9090

scheduler:
  timezone: Asia/Shanghai

log:
  level: debug
  json: true
`

func noEnv(string) string { return "" }

func TestParse_FullConfig(t *testing.T) {
	cfg, err := ParseWithEnv([]byte(fullYAML), noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Chatlog.BaseURL != "http://127.0.0.1:5030" {
		t.Errorf("Chatlog.BaseURL = %q", cfg.Chatlog.BaseURL)
	}
	if cfg.Chatlog.Timeout() != 20*time.Second {
		t.Errorf("Chatlog.Timeout() = %v, want 20s", cfg.Chatlog.Timeout())
	}
	if cfg.LLM.MaxAttempts != 3 {
		t.Errorf("LLM.MaxAttempts = %d, want 3", cfg.LLM.MaxAttempts)
	}
	if cfg.LLM.RetryDelay() != 2*time.Second {
		t.Errorf("LLM.RetryDelay() = %v, want 2s", cfg.LLM.RetryDelay())
	}
	if p := cfg.LLM.Providers["openai"]; p.APIKey != "sk-file" || p.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("openai provider = %+v", p)
	}
	if cfg.Reports.S3.Region != "us-east-1" {
		t.Errorf("S3.Region = %q, want default us-east-1", cfg.Reports.S3.Region)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Errorf("Location() = %v", cfg.Location())
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := ParseWithEnv([]byte("{}"), noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "chatui.db" {
		t.Errorf("Database = %+v, want sqlite chatui.db", cfg.Database)
	}
	if cfg.Chatlog.Format != "text" {
		t.Errorf("Chatlog.Format = %q, want text", cfg.Chatlog.Format)
	}
	if cfg.LLM.MaxAttempts != 2 {
		t.Errorf("LLM.MaxAttempts = %d, want 2", cfg.LLM.MaxAttempts)
	}
	if cfg.LLM.Timeout() != 180*time.Second {
		t.Errorf("LLM.Timeout() = %v, want 180s", cfg.LLM.Timeout())
	}
	if cfg.Pipeline.RoomInterval() != 3*time.Second {
		t.Errorf("RoomInterval() = %v, want 3s", cfg.Pipeline.RoomInterval())
	}
	if cfg.Scheduler.ReloadInterval() != 30*time.Second {
		t.Errorf("ReloadInterval() = %v, want 30s", cfg.Scheduler.ReloadInterval())
	}
	if cfg.Pipeline.SafetyMarginTokens != 500 {
		t.Errorf("SafetyMarginTokens = %d, want 500", cfg.Pipeline.SafetyMarginTokens)
	}
	if cfg.Reports.Dir != "reports" {
		t.Errorf("Reports.Dir = %q, want reports", cfg.Reports.Dir)
	}
	if cfg.Location() != time.Local {
		t.Errorf("Location() = %v, want Local", cfg.Location())
	}
}

func TestParse_EnvOverlay(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":     "sk-env",
		"ANTHROPIC_API_KEY":  "ak-env",
		"SLACK_BOT_TOKEN":    "xoxb-env",
		"CHATUI_CHATLOG_URL": "http://chatlog:5030",
	}
	cfg, err := ParseWithEnv([]byte(fullYAML), func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.LLM.Providers["openai"]; got.APIKey != "sk-env" || got.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("openai = %+v, want env key with file base_url", got)
	}
	if got := cfg.LLM.Providers["anthropic"].APIKey; got != "ak-env" {
		t.Errorf("anthropic key = %q", got)
	}
	if cfg.Slack.BotToken != "xoxb-env" {
		t.Errorf("Slack.BotToken = %q", cfg.Slack.BotToken)
	}
	if cfg.Chatlog.BaseURL != "http://chatlog:5030" {
		t.Errorf("Chatlog.BaseURL = %q", cfg.Chatlog.BaseURL)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: postgres\n", "database.driver"},
		{"mysql without name", "database:\n  driver: mysql\n", "database.name is required"},
		{"bad timezone", "scheduler:\n  timezone: Mars/Olympus\n", "scheduler.timezone"},
		{"unknown provider", "llm:\n  providers:\n    acme:\n      api_key: x\n", "llm.providers.acme"},
		{"negative attempts", "llm:\n  max_attempts: -1\n", "llm.max_attempts"},
		{"negative reload interval", "scheduler:\n  reload_interval_sec: -5\n", "scheduler.reload_interval_sec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWithEnv([]byte(tt.yaml), noEnv)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := ParseWithEnv([]byte("database: [unclosed"), noEnv)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatui.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q", err)
	}
}
