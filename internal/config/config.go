// Package config loads and validates the evaluator configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// EvaluatorConfig holds run scheduling and engine defaults
type EvaluatorConfig struct {
	ProfilesPath    string              `mapstructure:"profiles_path"`
	RearmPath       string              `mapstructure:"rearm_path"`
	PollInterval    time.Duration       `mapstructure:"poll_interval"`
	DefaultInterval string              `mapstructure:"default_interval"`
	DefaultExchange string              `mapstructure:"default_exchange"`
	ClockInterval   string              `mapstructure:"clock_interval"`
	GroupExpandTTL  time.Duration       `mapstructure:"group_expand_ttl"`
	RequestMode     string              `mapstructure:"request_mode"` // latest | as_of
	RequestAsOf     string              `mapstructure:"request_as_of"`
	SymbolGroups    map[string][]string `mapstructure:"symbol_groups"`
}

// FetchConfig holds indicator API client configuration
type FetchConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	OKTTL               time.Duration `mapstructure:"ok_ttl"`
	FailTTL             time.Duration `mapstructure:"fail_ttl"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// DispatchConfig holds notification delivery configuration
type DispatchConfig struct {
	Mode           string        `mapstructure:"mode"` // dry_run | telegram
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds state store configuration
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // memory | json | sqlite
	StatusPath  string `mapstructure:"status_path"`
	HistoryPath string `mapstructure:"history_path"`
	DBPath      string `mapstructure:"db_path"`
	HistoryCap  int    `mapstructure:"history_cap"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("ALERTCHAIN")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("evaluator.profiles_path", "./data/profiles.json")
	v.SetDefault("evaluator.rearm_path", "")
	v.SetDefault("evaluator.poll_interval", "1m")
	v.SetDefault("evaluator.default_interval", "1h")
	v.SetDefault("evaluator.default_exchange", "binance")
	v.SetDefault("evaluator.clock_interval", "")
	v.SetDefault("evaluator.group_expand_ttl", "10s")
	v.SetDefault("evaluator.request_mode", "latest")

	v.SetDefault("fetch.base_url", "http://localhost:8100")
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.retry_delay_base", "300ms")
	v.SetDefault("fetch.ok_ttl", "30s")
	v.SetDefault("fetch.fail_ttl", "5s")
	v.SetDefault("fetch.max_concurrent", 8)
	v.SetDefault("fetch.max_idle_conns", 20)
	v.SetDefault("fetch.max_idle_conns_per_host", 20)
	v.SetDefault("fetch.idle_conn_timeout", "90s")

	v.SetDefault("dispatch.mode", "dry_run")
	v.SetDefault("dispatch.max_retries", 3)
	v.SetDefault("dispatch.retry_delay_base", "1s")

	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.status_path", "./data/status.json")
	v.SetDefault("storage.history_path", "./data/history.json")
	v.SetDefault("storage.db_path", "./data/alertchain.db")
	v.SetDefault("storage.history_cap", 5000)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9190")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Evaluator.ProfilesPath == "" {
		return fmt.Errorf("evaluator.profiles_path is required")
	}
	if c.Evaluator.PollInterval < time.Second {
		return fmt.Errorf("evaluator.poll_interval must be at least 1 second")
	}
	if c.Evaluator.DefaultInterval == "" {
		return fmt.Errorf("evaluator.default_interval is required")
	}
	if c.Evaluator.DefaultExchange == "" {
		return fmt.Errorf("evaluator.default_exchange is required")
	}
	switch c.Evaluator.RequestMode {
	case "latest":
	case "as_of":
		if c.Evaluator.RequestAsOf == "" {
			return fmt.Errorf("evaluator.request_as_of is required when request_mode is as_of")
		}
	default:
		return fmt.Errorf("evaluator.request_mode must be one of: latest, as_of")
	}

	if c.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url is required")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}
	if c.Fetch.MaxConcurrent < 1 {
		return fmt.Errorf("fetch.max_concurrent must be at least 1")
	}

	switch c.Dispatch.Mode {
	case "dry_run":
	case "telegram":
		if c.Dispatch.BotToken == "" {
			return fmt.Errorf("dispatch.bot_token is required when dispatch mode is telegram")
		}
		if c.Dispatch.ChatID == "" {
			return fmt.Errorf("dispatch.chat_id is required when dispatch mode is telegram")
		}
	default:
		return fmt.Errorf("dispatch.mode must be one of: dry_run, telegram")
	}

	switch c.Storage.Backend {
	case "memory":
	case "json":
		if c.Storage.StatusPath == "" || c.Storage.HistoryPath == "" {
			return fmt.Errorf("storage.status_path and storage.history_path are required for the json backend")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: memory, json, sqlite")
	}
	if c.Storage.HistoryCap < 1 {
		return fmt.Errorf("storage.history_cap must be at least 1")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
