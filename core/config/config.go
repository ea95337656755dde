package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
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
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// ConversationConfig tunes the state engine, the cross-link cache and the sweeper.
type ConversationConfig struct {
	HistoryDepth      int           `yaml:"history_depth" envconfig:"CONVERSATION_HISTORY_DEPTH"`
	CrossLinkTTL      time.Duration `yaml:"crosslink_ttl" envconfig:"CROSSLINK_TTL"`
	SessionTTL        time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
	LookupTTL         time.Duration `yaml:"lookup_ttl" envconfig:"LOOKUP_TTL"`
	SweepInterval     time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
	StrictINNChecksum bool          `yaml:"strict_inn_checksum" envconfig:"STRICT_INN_CHECKSUM"`
	// StateTimeouts overrides per-state timeouts; zero disables the timer for that state.
	StateTimeouts map[string]time.Duration `yaml:"state_timeouts" ignored:"true"`
}

// StorageConfig selects where sessions and cross-links live.
type StorageConfig struct {
	Backend   string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	RedisURL  string `yaml:"redis_url" envconfig:"REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"STORAGE_KEY_PREFIX"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// BackendMemory keeps every store in process memory.
	BackendMemory = "memory"
	// BackendRedis keeps sessions and cross-links in Redis with native key expiry.
	BackendRedis = "redis"
	// BackendSQL keeps sessions and cross-links in the configured SQL database.
	BackendSQL = "sql"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateDocument identifies document uploads for rate limit exclusions.
	UpdateDocument = "document"
)

const (
	defaultHistoryDepth  = 10
	defaultCrossLinkTTL  = time.Hour
	defaultSessionTTL    = 24 * time.Hour
	defaultLookupTTL     = 24 * time.Hour
	defaultSweepInterval = time.Hour
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": inline button presses
// - "message": text messages
// - "document": file uploads
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path and then overlays environment variables.
// dst may be any struct that embeds or nests Config.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
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
	if rm == "" || rm == "polling" {
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
		UpdateDocument: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, document", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeConversation(&cfg.Conversation); err != nil {
		return err
	}
	return normalizeStorage(&cfg.Storage)
}

func normalizeConversation(c *ConversationConfig) error {
	if c.HistoryDepth < 0 {
		return fmt.Errorf("conversation.history_depth must be >= 0")
	}
	if c.HistoryDepth == 0 {
		c.HistoryDepth = defaultHistoryDepth
	}
	if c.CrossLinkTTL <= 0 {
		c.CrossLinkTTL = defaultCrossLinkTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.LookupTTL <= 0 {
		c.LookupTTL = defaultLookupTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	for name, d := range c.StateTimeouts {
		if d < 0 {
			return fmt.Errorf("conversation.state_timeouts.%s must be >= 0", name)
		}
	}
	return nil
}

func normalizeStorage(s *StorageConfig) error {
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory, BackendSQL:
	case BackendRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			return fmt.Errorf("storage.redis_url is required when storage.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: memory, redis, sql", s.Backend)
	}
	s.Backend = backend
	if strings.TrimSpace(s.KeyPrefix) == "" {
		s.KeyPrefix = "evabot:"
	}
	return nil
}
