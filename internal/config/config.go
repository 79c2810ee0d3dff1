package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the CritiqueWire pipeline. It is
// loaded once at process start and never mutated afterwards.
type Config struct {
	Collection   CollectionConfig
	Feeds        []FeedConfig
	Filters      FilterConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
	Retry        RetryConfig
	AI           AIConfig
	Storage      StorageConfig
}

// CollectionConfig controls the feed-collection scheduler.
type CollectionConfig struct {
	Interval        time.Duration // tick cadence
	Concurrency     int           // max feeds fetched in parallel per tick
	ShutdownTimeout time.Duration // max wait for an in-flight tick on shutdown
	Retention       time.Duration // articles older than this are cleaned up
}

// FeedConfig describes a single feed endpoint to collect from.
type FeedConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// FilterConfig holds optional keyword filters applied to feed entries.
type FilterConfig struct {
	TitleKeywords        []string
	TitleExcludeKeywords []string
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// RateLimitConfig controls host-level rate limiting of feed fetches.
type RateLimitConfig struct {
	MinDelay time.Duration // minimum gap between requests to the same host
}

// RetryConfig controls transient-failure retries on feed fetches.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// AIConfig configures the OpenAI analysis provider.
type AIConfig struct {
	BaseURL string        // defaults to https://api.openai.com/v1
	Model   string        // e.g. "gpt-4o-mini"
	APIKey  string        // expanded from env var by Load
	Timeout time.Duration // per-analysis deadline
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// rawConfig is used for YAML unmarshaling (snake_case fields, durations as strings).
type rawConfig struct {
	Collection   rawCollectionConfig `yaml:"collection"`
	Feeds        []FeedConfig        `yaml:"feeds"`
	Filters      rawFilterConfig     `yaml:"filters"`
	Notification NotificationConfig  `yaml:"notification"`
	RateLimit    rawRateLimitConfig  `yaml:"rate_limit"`
	Retry        rawRetryConfig      `yaml:"retry"`
	AI           rawAIConfig         `yaml:"ai"`
	Storage      StorageConfig       `yaml:"storage"`
}

type rawCollectionConfig struct {
	Interval        string `yaml:"interval"`
	Concurrency     int    `yaml:"concurrency"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	Retention       string `yaml:"retention"`
}

type rawFilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
}

type rawRateLimitConfig struct {
	MinDelay string `yaml:"min_delay"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawAIConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// Load reads and parses the YAML config file at path, applies defaults,
// validates it, and returns the immutable Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables (API keys, webhook URLs).
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval := 15 * time.Minute
	if raw.Collection.Interval != "" {
		interval, err = time.ParseDuration(raw.Collection.Interval)
		if err != nil {
			return nil, fmt.Errorf("parse collection.interval %q: %w", raw.Collection.Interval, err)
		}
	}
	if interval < time.Minute {
		return nil, fmt.Errorf("collection.interval %v is below the 1m minimum", interval)
	}

	shutdownTimeout := 30 * time.Second
	if raw.Collection.ShutdownTimeout != "" {
		shutdownTimeout, err = time.ParseDuration(raw.Collection.ShutdownTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse collection.shutdown_timeout %q: %w", raw.Collection.ShutdownTimeout, err)
		}
	}

	retention := 30 * 24 * time.Hour
	if raw.Collection.Retention != "" {
		retention, err = time.ParseDuration(raw.Collection.Retention)
		if err != nil {
			return nil, fmt.Errorf("parse collection.retention %q: %w", raw.Collection.Retention, err)
		}
	}

	concurrency := raw.Collection.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}

	minDelay := 2 * time.Second
	if raw.RateLimit.MinDelay != "" {
		minDelay, err = time.ParseDuration(raw.RateLimit.MinDelay)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.min_delay %q: %w", raw.RateLimit.MinDelay, err)
		}
	}

	maxRetries := 2
	if raw.Retry.MaxRetries != nil {
		maxRetries = *raw.Retry.MaxRetries
	}
	baseDelay := 5 * time.Second
	if raw.Retry.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(raw.Retry.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parse retry.base_delay %q: %w", raw.Retry.BaseDelay, err)
		}
	}

	aiTimeout := 60 * time.Second
	if raw.AI.Timeout != "" {
		aiTimeout, err = time.ParseDuration(raw.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse ai.timeout %q: %w", raw.AI.Timeout, err)
		}
	}

	aiBaseURL := raw.AI.BaseURL
	if aiBaseURL == "" {
		aiBaseURL = defaultOpenAIBaseURL
	}
	aiModel := raw.AI.Model
	if aiModel == "" {
		aiModel = defaultOpenAIModel
	}

	storagePath := raw.Storage.Path
	if storagePath == "" {
		storagePath = "critiquewire.db"
	}

	seen := make(map[string]bool, len(raw.Feeds))
	for _, f := range raw.Feeds {
		if f.ID == "" || f.URL == "" {
			return nil, fmt.Errorf("feed entries require both id and url, got %+v", f)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("duplicate feed id %q", f.ID)
		}
		seen[f.ID] = true
	}

	if raw.Notification.Type == "slack" && raw.Notification.WebhookURL == "" {
		return nil, fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
	}

	return &Config{
		Collection: CollectionConfig{
			Interval:        interval,
			Concurrency:     concurrency,
			ShutdownTimeout: shutdownTimeout,
			Retention:       retention,
		},
		Feeds: raw.Feeds,
		Filters: FilterConfig{
			TitleKeywords:        raw.Filters.TitleKeywords,
			TitleExcludeKeywords: raw.Filters.TitleExcludeKeywords,
		},
		Notification: raw.Notification,
		RateLimit:    RateLimitConfig{MinDelay: minDelay},
		Retry:        RetryConfig{MaxRetries: maxRetries, BaseDelay: baseDelay},
		AI: AIConfig{
			BaseURL: aiBaseURL,
			Model:   aiModel,
			APIKey:  raw.AI.APIKey,
			Timeout: aiTimeout,
		},
		Storage: StorageConfig{Path: storagePath},
	}, nil
}

// EnabledFeeds returns only the feeds marked enabled.
func (c *Config) EnabledFeeds() []FeedConfig {
	var out []FeedConfig
	for _, f := range c.Feeds {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}
