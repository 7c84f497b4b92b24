// Package config loads the media bot configuration: the shared core
// sections plus database, HTTP, media server, catalog and dialogue settings.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/nyamedia/nyabot/core/config"
	"github.com/nyamedia/nyabot/core/database"
)

// HTTPConfig configures the admin API and media-server webhook listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	// AdminToken guards /api/* with a bearer token when set.
	AdminToken string `yaml:"admin_token" envconfig:"HTTP_ADMIN_TOKEN"`
}

// EmbyConfig points at the media server used for account provisioning.
type EmbyConfig struct {
	URL            string        `yaml:"url" envconfig:"EMBY_URL"`
	Token          string        `yaml:"token" envconfig:"EMBY_TOKEN"`
	TemplateUserID string        `yaml:"template_user_id" envconfig:"EMBY_COPY_FROM_USER_ID"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"EMBY_TIMEOUT"`
}

// MetadataConfig configures the TMDB and BGM.TV catalogs.
type MetadataConfig struct {
	TMDBBaseURL string `yaml:"tmdb_base_url" envconfig:"TMDB_BASE_URL"`
	TMDBToken   string `yaml:"tmdb_token" envconfig:"TMDB_ACCESS_TOKEN"`
	BGMBaseURL  string `yaml:"bgm_base_url" envconfig:"BGM_BASE_URL"`
	BGMToken    string `yaml:"bgm_token" envconfig:"BGM_ACCESS_TOKEN"`
	Language    string `yaml:"language" envconfig:"METADATA_LANGUAGE"`
	UserAgent   string `yaml:"user_agent" envconfig:"METADATA_USER_AGENT"`
	// BatchInterval paces calls during a metadata backfill.
	BatchInterval time.Duration `yaml:"batch_interval" envconfig:"METADATA_BATCH_INTERVAL"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"METADATA_TIMEOUT"`
}

// NotifyConfig lists the chats that receive library arrival notices.
type NotifyConfig struct {
	Chats []int64 `yaml:"chats" envconfig:"WEBHOOK_NOTIFY_CHAT"`
}

// AccessConfig holds the admin allow-list and the disabled user deny list.
type AccessConfig struct {
	Admins        []int64 `yaml:"admins" envconfig:"ADMIN_CHATS"`
	DisabledUsers []int64 `yaml:"disabled_users" envconfig:"DISABLED_USERS"`
}

// DialogueConfig tunes the conversation engine.
type DialogueConfig struct {
	// CleanupDelay is how long group-chat notices stay before deletion.
	CleanupDelay time.Duration `yaml:"cleanup_delay" envconfig:"DIALOGUE_CLEANUP_DELAY"`
	// CallTimeout bounds every external call made from a dialogue step.
	CallTimeout time.Duration `yaml:"call_timeout" envconfig:"DIALOGUE_CALL_TIMEOUT"`
}

// Config is the full media bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
	HTTP     HTTPConfig      `yaml:"http"`
	Emby     EmbyConfig      `yaml:"emby"`
	Metadata MetadataConfig  `yaml:"metadata"`
	Notify   NotifyConfig    `yaml:"notify"`
	Access   AccessConfig    `yaml:"access"`
	Dialogue DialogueConfig  `yaml:"dialogue"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, overlays the environment and validates
// the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabase reads only what the migration commands need, so they run
// without a bot token.
func LoadDatabase(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates the bot specific sections.
func (c *Config) Normalize() error {
	if err := c.Database.Normalize(); err != nil {
		return err
	}

	if strings.TrimSpace(c.HTTP.Listen) == "" {
		c.HTTP.Listen = "127.0.0.1:3000"
	}

	c.Emby.URL = strings.TrimRight(strings.TrimSpace(c.Emby.URL), "/")
	if c.Emby.URL == "" {
		return fmt.Errorf("emby.url is required")
	}
	if _, err := url.ParseRequestURI(c.Emby.URL); err != nil {
		return fmt.Errorf("invalid emby.url: %w", err)
	}
	if c.Emby.Token == "" {
		return fmt.Errorf("emby.token is required")
	}
	if c.Emby.TemplateUserID == "" {
		return fmt.Errorf("emby.template_user_id is required")
	}
	if c.Emby.Timeout <= 0 {
		c.Emby.Timeout = 10 * time.Second
	}

	if c.Metadata.TMDBBaseURL == "" {
		c.Metadata.TMDBBaseURL = "https://api.themoviedb.org"
	}
	if c.Metadata.BGMBaseURL == "" {
		c.Metadata.BGMBaseURL = "https://api.bgm.tv"
	}
	if c.Metadata.Language == "" {
		c.Metadata.Language = "zh-CN"
	}
	if c.Metadata.UserAgent == "" {
		c.Metadata.UserAgent = "nyamedia/nyabot"
	}
	if c.Metadata.BatchInterval <= 0 {
		c.Metadata.BatchInterval = 500 * time.Millisecond
	}
	if c.Metadata.Timeout <= 0 {
		c.Metadata.Timeout = 10 * time.Second
	}

	if c.Dialogue.CleanupDelay <= 0 {
		c.Dialogue.CleanupDelay = 5 * time.Second
	}
	if c.Dialogue.CallTimeout <= 0 {
		c.Dialogue.CallTimeout = 15 * time.Second
	}
	return nil
}
