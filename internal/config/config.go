// Package config provides YAML-based configuration loading for chatui.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level chatui configuration, loaded from chatui.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Chatlog   ChatlogConfig   `yaml:"chatlog"`
	Slack     SlackConfig     `yaml:"slack"`
	Discord   DiscordConfig   `yaml:"discord"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Reports   ReportsConfig   `yaml:"reports"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the store backend. Driver is "sqlite" or "mysql".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// ChatlogConfig points at the HTTP transcript service.
type ChatlogConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Format     string `yaml:"format"`
}

// SlackConfig holds credentials for slack: rooms.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds credentials for discord: rooms.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// LLMConfig controls the model gateway.
type LLMConfig struct {
	DefaultModel  string                    `yaml:"default_model"`
	TimeoutSec    int                       `yaml:"timeout_sec"`
	MaxAttempts   int                       `yaml:"max_attempts"`
	RetryDelaySec int                       `yaml:"retry_delay_sec"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds per-provider credentials and endpoint overrides.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// PipelineConfig tunes a task run.
type PipelineConfig struct {
	RoomIntervalSec    int `yaml:"room_interval_sec"`
	FetchConcurrency   int `yaml:"fetch_concurrency"`
	SafetyMarginTokens int `yaml:"safety_margin_tokens"`
}

// ReportsConfig selects where finished HTML is written. S3 wins when a
// bucket is configured.
type ReportsConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config holds S3 (or MinIO) connection details.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
}

// ServerConfig configures the HTTP server started by `chatui serve`.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SchedulerConfig configures timer evaluation.
type SchedulerConfig struct {
	Timezone string `yaml:"timezone"`

	// ReloadIntervalSec is how often the scheduler re-reads tasks from
	// the store to pick up edits.
	ReloadIntervalSec int `yaml:"reload_interval_sec"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// providerEnv maps provider names to the environment variable holding
// their API key.
var providerEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"qwen":      "DASHSCOPE_API_KEY",
	"moonshot":  "MOONSHOT_API_KEY",
	"zhipu":     "ZHIPU_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory, if present, is loaded first so its
// values can fill secrets.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config, overlaying secrets
// from the process environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, os.Getenv)
}

// ParseWithEnv is Parse with an injectable environment lookup.
func ParseWithEnv(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays non-empty environment values onto secret fields.
func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Chatlog.BaseURL, "CHATUI_CHATLOG_URL")
	set(&c.Database.Password, "CHATUI_DB_PASSWORD")
	set(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	set(&c.Discord.BotToken, "DISCORD_BOT_TOKEN")
	set(&c.Reports.S3.AccessKeyID, "CHATUI_S3_ACCESS_KEY_ID")
	set(&c.Reports.S3.SecretAccessKey, "CHATUI_S3_SECRET_ACCESS_KEY")

	for name, key := range providerEnv {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		if c.LLM.Providers == nil {
			c.LLM.Providers = make(map[string]ProviderConfig)
		}
		p := c.LLM.Providers[name]
		p.APIKey = v
		c.LLM.Providers[name] = p
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "chatui.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Chatlog.TimeoutSec == 0 {
		c.Chatlog.TimeoutSec = 30
	}
	if c.Chatlog.Format == "" {
		c.Chatlog.Format = "text"
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "deepseek-chat"
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 180
	}
	if c.LLM.MaxAttempts == 0 {
		c.LLM.MaxAttempts = 2
	}
	if c.LLM.RetryDelaySec == 0 {
		c.LLM.RetryDelaySec = 5
	}
	if c.Pipeline.RoomIntervalSec == 0 {
		c.Pipeline.RoomIntervalSec = 3
	}
	if c.Scheduler.ReloadIntervalSec == 0 {
		c.Scheduler.ReloadIntervalSec = 30
	}
	if c.Pipeline.FetchConcurrency == 0 {
		c.Pipeline.FetchConcurrency = 4
	}
	if c.Pipeline.SafetyMarginTokens == 0 {
		c.Pipeline.SafetyMarginTokens = 500
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
	if c.Reports.S3.Bucket != "" && c.Reports.S3.Region == "" {
		c.Reports.S3.Region = "us-east-1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite":
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, "llm.max_attempts must be >= 1")
	}
	if c.LLM.TimeoutSec < 0 || c.Chatlog.TimeoutSec < 0 {
		errs = append(errs, "timeouts must not be negative")
	}
	if c.Pipeline.RoomIntervalSec < 0 {
		errs = append(errs, "pipeline.room_interval_sec must not be negative")
	}
	if c.Scheduler.ReloadIntervalSec < 0 {
		errs = append(errs, "scheduler.reload_interval_sec must not be negative")
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler.timezone %q: %v", c.Scheduler.Timezone, err))
		}
	}
	for name := range c.LLM.Providers {
		if _, ok := providerEnv[name]; !ok {
			errs = append(errs, fmt.Sprintf("llm.providers.%s is not a known provider", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured scheduler time zone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Timeout returns the per-request timeout for the chatlog service.
func (c ChatlogConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// Timeout returns the per-call timeout for model providers.
func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// RetryDelay returns the base delay between gateway attempts.
func (c LLMConfig) RetryDelay() time.Duration { return time.Duration(c.RetryDelaySec) * time.Second }

// ReloadInterval returns how often scheduled tasks are reconciled.
func (c SchedulerConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSec) * time.Second
}

// RoomInterval returns the pause between rooms of one run.
func (c PipelineConfig) RoomInterval() time.Duration {
	return time.Duration(c.RoomIntervalSec) * time.Second
}
