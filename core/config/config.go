package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "github.com/m3rciful/flowbot/core/database"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// EngineConfig controls the conversation flow engine.
type EngineConfig struct {
	GraphPath string `yaml:"graph_path" envconfig:"FLOW_GRAPH_PATH"`
	// MaxHops caps the auto-transition loop within a single turn.
	MaxHops int `yaml:"max_hops" envconfig:"FLOW_MAX_HOPS"`
	// ResetClearsVariables makes /reset also wipe stored user variables.
	ResetClearsVariables bool `yaml:"reset_clears_variables" envconfig:"FLOW_RESET_CLEARS_VARIABLES"`
}

// VarsConfig selects the durable backend for user variables.
type VarsConfig struct {
	// Backend is one of: postgres, bolt, memory.
	Backend  string `yaml:"backend" envconfig:"VARS_BACKEND"`
	BoltPath string `yaml:"bolt_path" envconfig:"VARS_BOLT_PATH"`
}

// HistoryConfig controls the fire-and-forget message history recorder.
type HistoryConfig struct {
	Enabled   bool `yaml:"enabled" envconfig:"HISTORY_ENABLED"`
	QueueSize int  `yaml:"queue_size" envconfig:"HISTORY_QUEUE_SIZE"`
	Workers   int  `yaml:"workers" envconfig:"HISTORY_WORKERS"`
}

// OpsConfig configures the auxiliary HTTP server (health, metrics).
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	// VarsBackendPostgres stores variables in Postgres via sqlx.
	VarsBackendPostgres = "postgres"
	// VarsBackendBolt stores variables in an embedded bbolt file.
	VarsBackendBolt = "bolt"
	// VarsBackendMemory keeps variables in process memory only.
	VarsBackendMemory = "memory"
)

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig      `yaml:"telegram"`
	Webhook   WebhookConfig       `yaml:"webhook"`
	Database  coredatabase.Config `yaml:"database"`
	Logging   LoggingConfig       `yaml:"logging"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Engine    EngineConfig        `yaml:"engine"`
	Vars      VarsConfig          `yaml:"vars"`
	History   HistoryConfig       `yaml:"history"`
	Ops       OpsConfig           `yaml:"ops"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.Engine.GraphPath) == "" {
		return fmt.Errorf("engine.graph_path is required")
	}
	if cfg.Engine.MaxHops < 0 {
		return fmt.Errorf("engine.max_hops must be >= 0")
	}
	if cfg.Engine.MaxHops == 0 {
		cfg.Engine.MaxHops = 25
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Vars.Backend))
	if backend == "" {
		backend = VarsBackendMemory
	}
	switch backend {
	case VarsBackendPostgres, VarsBackendMemory:
	case VarsBackendBolt:
		if strings.TrimSpace(cfg.Vars.BoltPath) == "" {
			return fmt.Errorf("vars.bolt_path is required when vars.backend is 'bolt'")
		}
	default:
		return fmt.Errorf("invalid vars.backend %q; allowed: postgres, bolt, memory", cfg.Vars.Backend)
	}
	cfg.Vars.Backend = backend

	if cfg.History.Enabled && backend != VarsBackendPostgres {
		return fmt.Errorf("history.enabled requires vars.backend 'postgres'")
	}
	if cfg.History.QueueSize < 0 || cfg.History.Workers < 0 {
		return fmt.Errorf("history queue_size and workers must be >= 0")
	}

	return nil
}
