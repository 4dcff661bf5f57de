package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// FetchConfig controls the plain-HTTP fetcher (internal/fetch).
type FetchConfig struct {
	UserAgent     string `yaml:"userAgent"`
	TimeoutMs     int    `yaml:"timeoutMs"`
	MaxRetries    int    `yaml:"maxRetries"`
	BackoffBaseMs int    `yaml:"backoffBaseMs"`
	BackoffCapMs  int    `yaml:"backoffCapMs"`
	MaxBodyBytes  int64  `yaml:"maxBodyBytes"`
}

// ScraperConfig controls link-harvesting limits applied during
// extraction, independent of the fetch transport itself.
type ScraperConfig struct {
	LinksSameDomainOnly bool `yaml:"linksSameDomainOnly"`
	LinksMaxPerDocument int  `yaml:"linksMaxPerDocument"`
}

type CrawlerConfig struct {
	MaxDepthDefault   int `yaml:"maxDepthDefault"`
	MaxPagesDefault   int `yaml:"maxPagesDefault"`
	MaxConcurrency    int `yaml:"maxConcurrency"`
	MaxPagesHardLimit int `yaml:"maxPagesHardLimit"`
}

type RobotsConfig struct {
	Respect         bool `yaml:"respect"`
	CacheTTLMinutes int  `yaml:"cacheTTLMinutes"`
}

// RodConfig controls the headless-browser render tier.
type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PoolSize   int    `yaml:"poolSize"`
	BinaryPath string `yaml:"binaryPath"`
	TimeoutMs  int    `yaml:"timeoutMs"`
	RenderMode string `yaml:"renderMode"` // auto | always | never
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// APIKeyConfig is a single statically-configured credential entry,
// replacing the teacher's multi-tenant/OIDC auth stack with a flat
// allow-list (credentials may also live in the database, see
// internal/store; entries here are seeded at boot).
type APIKeyConfig struct {
	Name            string   `yaml:"name"`
	Key             string   `yaml:"key"`
	Scopes          []string `yaml:"scopes"`
	RateLimitPerMin int      `yaml:"rateLimitPerMinute"`
}

type AuthConfig struct {
	Enabled bool           `yaml:"enabled"`
	APIKeys []APIKeyConfig `yaml:"apiKeys"`
}

// RateLimitConfig controls the sliding-window per-credential limiter
// and the per-host domain throttle (concurrency + politeness delay).
type RateLimitConfig struct {
	DefaultPerMinute    int `yaml:"defaultPerMinute"`
	WindowSeconds       int `yaml:"windowSeconds"`
	DomainMaxConcurrent int `yaml:"domainMaxConcurrent"`
	DomainMinDelayMs    int `yaml:"domainMinDelayMs"`
}

type WorkerConfig struct {
	MaxConcurrentJobs    int `yaml:"maxConcurrentJobs"`
	PollIntervalMs       int `yaml:"pollIntervalMs"`
	SyncJobWaitTimeoutMs int `yaml:"syncJobWaitTimeoutMs"`
	// JobTimeoutSeconds bounds how long a job may stay `running` with no
	// worker reporting completion before the liveness sweep promotes it
	// to `failed`; defaults to 300s.
	JobTimeoutSeconds int `yaml:"jobTimeoutSeconds"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

// SearxngConfig holds provider-specific configuration for SearxNG-based search.
type SearxngConfig struct {
	BaseURL      string `yaml:"baseURL"`
	DefaultLimit int    `yaml:"defaultLimit"`
	TimeoutMs    int    `yaml:"timeoutMs"`
}

// SearchConfig controls the optional /v1/search endpoint and its provider.
type SearchConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Provider             string        `yaml:"provider"`
	MaxResults           int           `yaml:"maxResults"`
	TimeoutMs            int           `yaml:"timeoutMs"`
	MaxConcurrentScrapes int           `yaml:"maxConcurrentScrapes"`
	Searxng              SearxngConfig `yaml:"searxng"`
}

// CacheConfig controls the two-tier response cache.
type CacheConfig struct {
	HotTTLSeconds int `yaml:"hotTTLSeconds"`
	MaxAgeMinutes int `yaml:"maxAgeMinutes"`
}

// JobTTLConfig controls per-job-type retention in days.
type JobTTLConfig struct {
	DefaultDays      int `yaml:"defaultDays"`
	MapDays          int `yaml:"mapDays"`
	AgentExtractDays int `yaml:"agentExtractDays"`
	SearchScrapeDays int `yaml:"searchScrapeDays"`
}

// PageTTLConfig controls retention for cached page rows.
type PageTTLConfig struct {
	DefaultDays int `yaml:"defaultDays"`
}

// RetentionConfig controls TTL-like deletion of old jobs and pages so
// that the database does not grow without bound over time.
type RetentionConfig struct {
	Enabled                bool          `yaml:"enabled"`
	CleanupIntervalMinutes int           `yaml:"cleanupIntervalMinutes"`
	Jobs                   JobTTLConfig  `yaml:"jobs"`
	Pages                  PageTTLConfig `yaml:"pages"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rod       RodConfig       `yaml:"rod"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Worker    WorkerConfig    `yaml:"worker"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}

// Validate performs basic sanity checks on the loaded configuration so
// obviously misconfigured deployments fail fast at startup rather than
// during the first request.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if provider := strings.TrimSpace(cfg.LLM.DefaultProvider); provider != "" {
		switch provider {
		case "openai":
			if cfg.LLM.OpenAI.APIKey == "" || cfg.LLM.OpenAI.Model == "" {
				return errors.New("openai llm provider is not fully configured")
			}
		case "anthropic":
			if cfg.LLM.Anthropic.APIKey == "" || cfg.LLM.Anthropic.Model == "" {
				return errors.New("anthropic llm provider is not fully configured")
			}
		case "google":
			if cfg.LLM.Google.APIKey == "" || cfg.LLM.Google.Model == "" {
				return errors.New("google llm provider is not fully configured")
			}
		default:
			return fmt.Errorf("unsupported llm.defaultProvider: %s", provider)
		}
	}

	if cfg.Auth.Enabled {
		seen := make(map[string]struct{})
		for _, k := range cfg.Auth.APIKeys {
			if strings.TrimSpace(k.Key) == "" {
				return errors.New("auth.apiKeys entries must set a non-empty key")
			}
			if _, dup := seen[k.Key]; dup {
				return fmt.Errorf("auth.apiKeys contains duplicate key for %q", k.Name)
			}
			seen[k.Key] = struct{}{}
		}
	}

	return nil
}
