// Package config handles configuration loading and management for Optilist.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Optilist.
type Config struct {
	Budget       BudgetConfig       `mapstructure:"budget"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Marketplace  MarketplaceConfig  `mapstructure:"marketplace"`
	Server       ServerConfig       `mapstructure:"server"`
	State        StateConfig        `mapstructure:"state"`
}

// BudgetConfig holds cost governor settings.
type BudgetConfig struct {
	// DailyCeiling is the maximum spend per rolling day, in dollars.
	DailyCeiling float64 `mapstructure:"daily_ceiling"`
	// PerCallCeiling is the maximum estimated cost of a single metered call.
	PerCallCeiling float64 `mapstructure:"per_call_ceiling"`
	// AlertThresholds are fractions of the daily ceiling (0.0-1.0) at which
	// an alert fires once per day.
	AlertThresholds []float64 `mapstructure:"alert_thresholds"`
	// Timezone is the IANA timezone in which the daily ceiling resets at midnight.
	Timezone string `mapstructure:"timezone"`
}

// CompletionConfig holds metered completion service settings.
type CompletionConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string `mapstructure:"api_key"`
	// Model is the primary model for metered calls.
	Model string `mapstructure:"model"`
	// FallbackModel is the cheaper model workers try when the primary
	// estimate is rejected by the budget.
	FallbackModel string `mapstructure:"fallback_model"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string `mapstructure:"aws_profile"`
	// CallTimeout bounds a single completion call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxOutputTokens caps the output length of a completion call.
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
	// Pricing overrides the built-in per-model price table. Keys are model
	// ids, values are prices per million tokens.
	Pricing map[string]ModelPrice `mapstructure:"pricing"`
}

// ModelPrice is the price of one model per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `mapstructure:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million"`
}

// OrchestratorConfig holds workflow orchestration settings.
type OrchestratorConfig struct {
	// Deadline is the shared wall-clock deadline for a workflow's fan-out.
	Deadline time.Duration `mapstructure:"deadline"`
	// RegistryPath points to the workflow-type registry YAML. Empty uses
	// the built-in registry.
	RegistryPath string `mapstructure:"registry_path"`
	// EventBuffer is the orchestrator event channel capacity.
	EventBuffer int `mapstructure:"event_buffer"`
}

// MarketplaceConfig holds marketplace data source settings.
type MarketplaceConfig struct {
	// BaseURL is the marketplace query endpoint.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds a single marketplace query.
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheTTL is how long cached marketplace records stay fresh.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// CacheMaxEntries bounds the number of cached queries.
	CacheMaxEntries int64 `mapstructure:"cache_max_entries"`
}

// ServerConfig holds HTTP submission API settings.
type ServerConfig struct {
	// Addr is the listen address for the HTTP API.
	Addr string `mapstructure:"addr"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath is the sqlite database path. Empty uses the default data dir.
	DBPath string `mapstructure:"db_path"`
	// QueueSize is the async persistence writer queue capacity.
	QueueSize int `mapstructure:"queue_size"`
	// WriteRetries is how many times a failed write is retried.
	WriteRetries int `mapstructure:"write_retries"`
	// RetryBackoff is the delay between write retries.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (OPTILIST_*, ANTHROPIC_API_KEY)
// 2. Project config (.optilist.yaml in the current directory or a parent)
// 3. User config (~/.config/optilist/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("OPTILIST")
	v.AutomaticEnv()
	v.BindEnv("completion.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Completion.APIKey = expandEnv(cfg.Completion.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Completion.APIKey = expandEnv(cfg.Completion.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that loaded values are usable.
func (c *Config) Validate() error {
	if c.Budget.DailyCeiling <= 0 {
		return fmt.Errorf("budget.daily_ceiling must be positive, got %v", c.Budget.DailyCeiling)
	}
	if c.Budget.PerCallCeiling <= 0 {
		return fmt.Errorf("budget.per_call_ceiling must be positive, got %v", c.Budget.PerCallCeiling)
	}
	if c.Budget.PerCallCeiling > c.Budget.DailyCeiling {
		return fmt.Errorf("budget.per_call_ceiling (%v) exceeds daily_ceiling (%v)",
			c.Budget.PerCallCeiling, c.Budget.DailyCeiling)
	}
	for _, th := range c.Budget.AlertThresholds {
		if th <= 0 || th > 1 {
			return fmt.Errorf("budget.alert_thresholds entries must be in (0,1], got %v", th)
		}
	}
	if _, err := time.LoadLocation(c.Budget.Timezone); err != nil {
		return fmt.Errorf("budget.timezone: %w", err)
	}
	if c.Orchestrator.Deadline <= 0 {
		return fmt.Errorf("orchestrator.deadline must be positive, got %v", c.Orchestrator.Deadline)
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("budget.daily_ceiling", 10.00)
	v.SetDefault("budget.per_call_ceiling", 0.25)
	v.SetDefault("budget.alert_thresholds", []float64{0.50, 0.80, 0.95, 1.00})
	v.SetDefault("budget.timezone", "UTC")

	v.SetDefault("completion.model", "claude-sonnet-4-20250514")
	v.SetDefault("completion.fallback_model", "claude-3-5-haiku-20241022")
	v.SetDefault("completion.call_timeout", 60*time.Second)
	v.SetDefault("completion.max_output_tokens", 1024)

	v.SetDefault("orchestrator.deadline", 10*time.Second)
	v.SetDefault("orchestrator.event_buffer", 100)

	v.SetDefault("marketplace.timeout", 5*time.Second)
	v.SetDefault("marketplace.cache_ttl", 5*time.Minute)
	v.SetDefault("marketplace.cache_max_entries", 10000)

	v.SetDefault("server.addr", ":8390")

	v.SetDefault("state.queue_size", 256)
	v.SetDefault("state.write_retries", 3)
	v.SetDefault("state.retry_backoff", 250*time.Millisecond)
}

// getUserConfigDir returns the XDG config directory for Optilist.
func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "optilist")
}

// findProjectConfig walks up from the current directory looking for .optilist.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ".optilist.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnv expands ${VAR} references in a config value.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
