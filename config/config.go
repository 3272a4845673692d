// Package config provides configuration loading and management for coursegen.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/coursegen/llm"
	"github.com/c360studio/coursegen/model"
)

// KnownProviders lists the host providers the CLI ships with.
var KnownProviders = []string{"anthropic", "huggingface", "ollama", "openai"}

// Gate backends.
const (
	GateMemory = "memory"
	GateRedis  = "redis"
)

// Config represents the complete coursegen configuration
type Config struct {
	Host        HostConfig         `yaml:"host"`
	Credentials []model.Credential `yaml:"credentials"`
	Retry       RetryConfig        `yaml:"retry"`
	Gate        GateConfig         `yaml:"gate"`
	NATS        NATSConfig         `yaml:"nats"`
}

// HostConfig configures the model host
type HostConfig struct {
	// Provider is the host API flavor (huggingface, openai, ollama, anthropic)
	Provider string `yaml:"provider"`
	// URL is the API base URL (empty = provider default)
	URL string `yaml:"url"`
	// Timeout bounds a single upstream attempt
	Timeout time.Duration `yaml:"timeout"`
	// MinContentLength is the shortest text output accepted as content
	MinContentLength int `yaml:"min_content_length"`
	// Temperature controls randomness (nil = host default)
	Temperature *float64 `yaml:"temperature,omitempty"`
	// MaxTokens limits text length (0 = host default)
	MaxTokens int `yaml:"max_tokens,omitempty"`
	// Models maps a task category to a model id
	Models map[model.Category]string `yaml:"models"`
}

// RetryConfig configures the delay between credentials
type RetryConfig struct {
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// GateConfig configures admission control
type GateConfig struct {
	// Backend is "memory" (single process) or "redis" (shared across processes)
	Backend string `yaml:"backend"`
	// RedisAddr is the Redis address for the redis backend
	RedisAddr string `yaml:"redis_addr"`
	// TTL bounds how long a crashed holder can block a category (redis only)
	TTL time.Duration `yaml:"ttl"`
}

// NATSConfig configures course publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = publishing disabled)
	URL string `yaml:"url"`
	// SubjectPrefix is the subject root for published records
	SubjectPrefix string `yaml:"subject_prefix"`
	// Stream is created to capture published records when set
	Stream string `yaml:"stream"`
	// Store also keeps built courses in KV buckets for later reads
	Store bool `yaml:"store"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	retry := llm.DefaultRetryConfig()
	return &Config{
		Host: HostConfig{
			Provider:         "huggingface",
			URL:              "",
			Timeout:          llm.DefaultTimeout,
			MinContentLength: llm.DefaultMinContentLength,
			Models: map[model.Category]string{
				model.CategoryStructure: "mistralai/Mistral-7B-Instruct-v0.3",
				model.CategoryText:      "mistralai/Mistral-7B-Instruct-v0.3",
				model.CategoryQA:        "mistralai/Mistral-7B-Instruct-v0.3",
				model.CategoryImage:     "stabilityai/stable-diffusion-xl-base-1.0",
				model.CategoryVideo:     "ali-vilab/text-to-video-ms-1.7b",
			},
		},
		Retry: RetryConfig{
			BackoffBase:       retry.BackoffBase,
			BackoffMultiplier: retry.BackoffMultiplier,
			MaxBackoff:        retry.MaxBackoff,
		},
		Gate: GateConfig{
			Backend: GateMemory,
			TTL:     5 * time.Minute,
		},
		NATS: NATSConfig{
			SubjectPrefix: "coursegen",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(KnownProviders, c.Host.Provider) {
		return fmt.Errorf("host.provider must be one of %v, got %q", KnownProviders, c.Host.Provider)
	}
	if c.Host.Timeout <= 0 {
		return fmt.Errorf("host.timeout must be positive")
	}
	if c.Host.MinContentLength < 0 {
		return fmt.Errorf("host.min_content_length must not be negative")
	}
	if t := c.Host.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("host.temperature must be between 0 and 2")
	}
	for cat := range c.Host.Models {
		if !cat.IsValid() {
			return fmt.Errorf("host.models: unknown category %q", cat)
		}
	}
	for i, cred := range c.Credentials {
		if cred.Prefer != "" && !cred.Prefer.IsValid() {
			return fmt.Errorf("credentials[%d]: unknown preferred category %q", i, cred.Prefer)
		}
	}
	if c.Retry.BackoffBase < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1")
	}
	switch c.Gate.Backend {
	case GateMemory:
	case GateRedis:
		if c.Gate.RedisAddr == "" {
			return fmt.Errorf("gate.redis_addr is required for the redis backend")
		}
		if c.Gate.TTL < 0 {
			return fmt.Errorf("gate.ttl must not be negative")
		}
	default:
		return fmt.Errorf("gate.backend must be %q or %q", GateMemory, GateRedis)
	}
	return nil
}

// Pool builds the credential pool. Credentials are fixed once the pool exists.
func (c *Config) Pool() *model.Pool {
	return model.NewPool(c.Credentials)
}

// LLMHost converts the host section for llm.NewClient.
func (c *Config) LLMHost() llm.HostConfig {
	return llm.HostConfig{
		Provider:         c.Host.Provider,
		URL:              c.Host.URL,
		Models:           c.Host.Models,
		Timeout:          c.Host.Timeout,
		MinContentLength: c.Host.MinContentLength,
		Options: llm.Options{
			Temperature: c.Host.Temperature,
			MaxTokens:   c.Host.MaxTokens,
		},
	}
}

// LLMRetry converts the retry section for llm.WithRetryConfig.
func (c *Config) LLMRetry() llm.RetryConfig {
	cfg := llm.DefaultRetryConfig()
	cfg.BackoffBase = c.Retry.BackoffBase
	cfg.BackoffMultiplier = c.Retry.BackoffMultiplier
	cfg.MaxBackoff = c.Retry.MaxBackoff
	return cfg
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	layer, err := loadLayer(path)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	config.Merge(layer)
	return config, nil
}

// loadLayer reads a YAML file without defaults, for merging.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file. Credentials are written
// as-is, so the file is created readable by the owner only.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Host
	if other.Host.Provider != "" {
		c.Host.Provider = other.Host.Provider
	}
	if other.Host.URL != "" {
		c.Host.URL = other.Host.URL
	}
	if other.Host.Timeout != 0 {
		c.Host.Timeout = other.Host.Timeout
	}
	if other.Host.MinContentLength != 0 {
		c.Host.MinContentLength = other.Host.MinContentLength
	}
	if other.Host.Temperature != nil {
		c.Host.Temperature = other.Host.Temperature
	}
	if other.Host.MaxTokens != 0 {
		c.Host.MaxTokens = other.Host.MaxTokens
	}
	if len(other.Host.Models) > 0 {
		merged := make(map[model.Category]string, len(c.Host.Models)+len(other.Host.Models))
		for k, v := range c.Host.Models {
			merged[k] = v
		}
		for k, v := range other.Host.Models {
			if v != "" {
				merged[k] = v
			}
		}
		c.Host.Models = merged
	}

	// Credentials are replaced, never appended
	if len(other.Credentials) > 0 {
		c.Credentials = slices.Clone(other.Credentials)
	}

	// Retry
	if other.Retry.BackoffBase != 0 {
		c.Retry.BackoffBase = other.Retry.BackoffBase
	}
	if other.Retry.BackoffMultiplier != 0 {
		c.Retry.BackoffMultiplier = other.Retry.BackoffMultiplier
	}
	if other.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = other.Retry.MaxBackoff
	}

	// Gate
	if other.Gate.Backend != "" {
		c.Gate.Backend = other.Gate.Backend
	}
	if other.Gate.RedisAddr != "" {
		c.Gate.RedisAddr = other.Gate.RedisAddr
	}
	if other.Gate.TTL != 0 {
		c.Gate.TTL = other.Gate.TTL
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}
	if other.NATS.Stream != "" {
		c.NATS.Stream = other.NATS.Stream
	}
	if other.NATS.Store {
		c.NATS.Store = true
	}
}
