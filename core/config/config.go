package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the Telegram webhook listener.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"TELEGRAM_WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"TELEGRAM_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"TELEGRAM_WEBHOOK_PORT"`
	// SecretToken is checked against X-Telegram-Bot-Api-Secret-Token.
	SecretToken string `yaml:"secret_token" envconfig:"TELEGRAM_WEBHOOK_SECRET"`
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

// SenderConfig tunes the asynchronous outbound message worker pool.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size"`
	Workers        int `yaml:"workers"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
	MaxDurationMS  int `yaml:"max_duration_ms"`
	// PerSecond caps outbound sends across all workers; 0 disables the cap.
	PerSecond float64 `yaml:"per_second"`
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

// RateLimitConfig holds settings for per-user update throttling.
// ExcludeUpdates accepts "callback" and "message".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
}

// Decode fills dst from the YAML file at path and then overlays environment
// variables. A missing file is not an error so deployments can rely on env only.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Load reads the core configuration from a YAML file and environment variables.
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

// Normalize validates cfg and fills defaults. Every problem found is
// reported, joined into one error.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	cfg.Sender.normalize()
	return errors.Join(
		cfg.Telegram.normalize(cfg.Webhook),
		cfg.RateLimit.normalize(),
	)
}

func (t *TelegramConfig) normalize(wh WebhookConfig) error {
	var errs []error
	if strings.TrimSpace(t.Token) == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}
	mode := strings.ToLower(strings.TrimSpace(t.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
		if t.LongPollTimeoutSeconds < 0 {
			errs = append(errs, errors.New("telegram.longpoll_timeout_seconds must be >= 0"))
		}
	case RunModeWebhook:
		t.RunMode = RunModeWebhook
		for field, missing := range map[string]bool{
			"webhook.url":    strings.TrimSpace(wh.URL) == "",
			"webhook.listen": strings.TrimSpace(wh.Listen) == "",
			"webhook.port":   wh.Port <= 0,
		} {
			if missing {
				errs = append(errs, fmt.Errorf("%s is required when telegram.run_mode is 'webhook'", field))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", t.RunMode))
	}
	return errors.Join(errs...)
}

func (r *RateLimitConfig) normalize() error {
	var errs []error
	for i, v := range r.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "", UpdateCallback, UpdateMessage:
			r.ExcludeUpdates[i] = key
		default:
			errs = append(errs, fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v))
		}
	}
	if r.IntervalMS < 0 {
		errs = append(errs, errors.New("rate_limit.interval_ms must be >= 0"))
	}
	return errors.Join(errs...)
}

func (s *SenderConfig) normalize() {
	defaults := []struct {
		field *int
		value int
	}{
		{&s.Workers, 2},
		{&s.QueueSize, 256},
		{&s.RetryBackoffMS, 500},
		{&s.MaxDurationMS, 15000},
	}
	for _, d := range defaults {
		if *d.field <= 0 {
			*d.field = d.value
		}
	}
	s.MaxRetries = max(s.MaxRetries, 0)
	s.PerSecond = max(s.PerSecond, 0)
}
