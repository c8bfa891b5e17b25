// Package config loads CRM settings from config.yaml and CRM_* environment
// variables, and initializes the global zap logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Maintenance MaintenanceConfig `yaml:"maintenance" mapstructure:"maintenance"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	Jobs        JobsConfig        `yaml:"jobs" mapstructure:"jobs"`
	AICache     AICacheConfig     `yaml:"aicache" mapstructure:"aicache"`
	Records     RecordsConfig     `yaml:"records" mapstructure:"records"`
}

// StoreConfig configures the Postgres connection.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MaintenanceConfig guards the maintenance endpoints. An empty token
// disables them.
type MaintenanceConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// LLMConfig selects the chat provider: openai or anthropic.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// OpenAIConfig holds OpenAI credentials.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic credentials.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JobsConfig tunes the AI job runner.
type JobsConfig struct {
	MinDelayMs           int `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	StepTimeoutSecs      int `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	MaxBatch             int `yaml:"max_batch" mapstructure:"max_batch"`
	DefaultBatch         int `yaml:"default_batch" mapstructure:"default_batch"`
	RateLimitBackoffSecs int `yaml:"rate_limit_backoff_secs" mapstructure:"rate_limit_backoff_secs"`
	AuthBackoffHours     int `yaml:"auth_backoff_hours" mapstructure:"auth_backoff_hours"`
}

// MinDelay is the throttle gap between dispatches.
func (j JobsConfig) MinDelay() time.Duration {
	return time.Duration(j.MinDelayMs) * time.Millisecond
}

// StepTimeout bounds each external call.
func (j JobsConfig) StepTimeout() time.Duration {
	return time.Duration(j.StepTimeoutSecs) * time.Second
}

// AICacheConfig selects the AI cache backend: postgres or sqlite.
type AICacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RecordsConfig bounds record listing and export.
type RecordsConfig struct {
	ListLimit int `yaml:"list_limit" mapstructure:"list_limit"`
	ExportMax int `yaml:"export_max" mapstructure:"export_max"`
}

// Load reads config.yaml from the working directory (optional) and
// overlays CRM_* environment variables, e.g. CRM_STORE_DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("maintenance.token", "")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("jobs.min_delay_ms", 1200)
	v.SetDefault("jobs.step_timeout_secs", 30)
	v.SetDefault("jobs.max_batch", 50)
	v.SetDefault("jobs.default_batch", 5)
	v.SetDefault("jobs.rate_limit_backoff_secs", 60)
	v.SetDefault("jobs.auth_backoff_hours", 6)
	v.SetDefault("aicache.driver", "postgres")
	v.SetDefault("aicache.sqlite_path", "ai_cache.db")
	v.SetDefault("records.list_limit", 2000)
	v.SetDefault("records.export_max", 20000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// serve, jobs, db and offline.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.requireDB()...)
		errs = append(errs, c.validateJobs()...)
	case "jobs":
		errs = append(errs, c.requireDB()...)
		errs = append(errs, c.validateJobs()...)
	case "db":
		errs = append(errs, c.requireDB()...)
	case "offline":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, "llm.provider must be openai or anthropic")
	}
	switch c.AICache.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, "aicache.driver must be postgres or sqlite")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireDB() []string {
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

func (c *Config) validateJobs() []string {
	var errs []string
	j := c.Jobs
	if j.MaxBatch < 1 || j.MaxBatch > 50 {
		errs = append(errs, "jobs.max_batch must be between 1 and 50")
	}
	if j.DefaultBatch < 1 || j.DefaultBatch > j.MaxBatch {
		errs = append(errs, "jobs.default_batch must be between 1 and jobs.max_batch")
	}
	if j.MinDelayMs < 0 {
		errs = append(errs, "jobs.min_delay_ms must be >= 0")
	}
	if j.StepTimeoutSecs <= 0 {
		errs = append(errs, "jobs.step_timeout_secs must be > 0")
	}
	return errs
}

// InitLogger installs the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
