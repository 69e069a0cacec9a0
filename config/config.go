package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Redis struct {
		Enable   bool   `mapstructure:"enable"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Gateway struct {
		DefaultTimeoutSec int `mapstructure:"default_timeout_sec"`
		DefaultMaxRetries int `mapstructure:"default_max_retries"`
		ToolConcurrency   int `mapstructure:"tool_concurrency"`
		BackoffBaseMs     int `mapstructure:"backoff_base_ms"`
		BackoffCapMs      int `mapstructure:"backoff_cap_ms"`
	} `mapstructure:"gateway"`
	Workflow struct {
		MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
	} `mapstructure:"workflow"`
	Adapters struct {
		Seed      int64 `mapstructure:"seed"`
		LatencyMs int   `mapstructure:"latency_ms"`
	} `mapstructure:"adapters"`
}

// Load reads configuration from an optional file path (or ./config.yaml)
// and the environment. Missing files are fine; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("gateway.default_timeout_sec", 30)
	v.SetDefault("gateway.default_max_retries", 2)
	v.SetDefault("gateway.tool_concurrency", 4)
	v.SetDefault("gateway.backoff_base_ms", 50)
	v.SetDefault("gateway.backoff_cap_ms", 2000)
	v.SetDefault("workflow.max_concurrent_runs", 8)
	v.SetDefault("adapters.seed", 42)
	v.SetDefault("adapters.latency_ms", 200)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("chemgate")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
