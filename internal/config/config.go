// Package config loads HostWarden configuration via Viper and constructs
// the process logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateConfig controls the process-wide scan rate limiter.
type RateConfig struct {
	TokensPerSecond float64 `mapstructure:"tokens_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// RetryConfig controls per-host scan retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TimeoutConfig bounds network and remote-command operations.
type TimeoutConfig struct {
	Connect time.Duration `mapstructure:"connect"`
	Command time.Duration `mapstructure:"command"`
}

// BatchConfig controls batch scan fan-out.
type BatchConfig struct {
	GroupSize int `mapstructure:"group_size"`
}

// CacheConfig controls the cache manager.
type CacheConfig struct {
	MaxEntries      int                      `mapstructure:"max_entries"`
	CleanupInterval time.Duration            `mapstructure:"cleanup_interval"`
	StaleMultiplier float64                  `mapstructure:"stale_multiplier"`
	TTL             map[string]time.Duration `mapstructure:"ttl"`
	BackingPath     string                   `mapstructure:"backing_path"`
}

// RegistryConfig controls inventory loading.
type RegistryConfig struct {
	ReloadTTL   time.Duration `mapstructure:"reload_ttl"`
	YAMLFiles   []string      `mapstructure:"yaml_files"`
	AnsibleFile string        `mapstructure:"ansible_file"`
	SSHConfig   string        `mapstructure:"ssh_config"`
}

// ScanConfig controls the probe stage of the orchestrator.
type ScanConfig struct {
	ManagementPort int  `mapstructure:"management_port"`
	ICMPAssist     bool `mapstructure:"icmp_assist"`
}

// SSHConfig configures the remote executor used for deep inspection.
type SSHConfig struct {
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	Port           int    `mapstructure:"port"`
}

// ServerConfig holds the HTTP server settings, including the per-client-IP
// request limit applied by the middleware chain.
type ServerConfig struct {
	Host              string  `mapstructure:"host"`
	Port              int     `mapstructure:"port"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst"`
}

// LoggingConfig selects the process logger's level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Addr returns the listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Config is the full typed configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Rate     RateConfig     `mapstructure:"rate"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Registry RegistryConfig `mapstructure:"registry"`
	Scan     ScanConfig     `mapstructure:"scan"`
	SSH      SSHConfig      `mapstructure:"ssh"`
}

// Load reads configuration from an optional file plus environment variables
// and returns the backing Viper instance. A missing config file is not an
// error; defaults apply.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_second", 100.0)
	v.SetDefault("server.request_burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rate.tokens_per_second", 5.0)
	v.SetDefault("rate.burst", 10)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("timeouts.connect", "5s")
	v.SetDefault("timeouts.command", "30s")

	v.SetDefault("batch.group_size", 10)

	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.cleanup_interval", "60s")
	v.SetDefault("cache.stale_multiplier", 2.0)
	v.SetDefault("cache.backing_path", "")

	v.SetDefault("registry.reload_ttl", "15m")

	v.SetDefault("scan.management_port", 22)
	v.SetDefault("scan.icmp_assist", false)

	v.SetDefault("ssh.port", 22)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hostwarden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hostwarden")
	}

	// Environment variable support: HW_SERVER_PORT=9090. The replacer maps
	// nested keys (server.port) onto flat variable names (SERVER_PORT).
	v.SetEnvPrefix("HW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// FromViper unmarshals and validates the typed configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects programmer-error values. Misconfiguration is the one
// class of failure that surfaces hard at construction time.
func (c *Config) Validate() error {
	if c.Server.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.requests_per_second must be positive, got %v", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestBurst < 1 {
		return fmt.Errorf("server.request_burst must be at least 1, got %d", c.Server.RequestBurst)
	}
	if c.Rate.TokensPerSecond <= 0 {
		return fmt.Errorf("rate.tokens_per_second must be positive, got %v", c.Rate.TokensPerSecond)
	}
	if c.Rate.Burst < 1 {
		return fmt.Errorf("rate.burst must be at least 1, got %d", c.Rate.Burst)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Timeouts.Connect <= 0 {
		return fmt.Errorf("timeouts.connect must be positive, got %v", c.Timeouts.Connect)
	}
	if c.Timeouts.Command <= 0 {
		return fmt.Errorf("timeouts.command must be positive, got %v", c.Timeouts.Command)
	}
	if c.Batch.GroupSize < 1 {
		return fmt.Errorf("batch.group_size must be at least 1, got %d", c.Batch.GroupSize)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be at least 1, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache.cleanup_interval must be positive, got %v", c.Cache.CleanupInterval)
	}
	if c.Cache.StaleMultiplier < 1 {
		return fmt.Errorf("cache.stale_multiplier must be at least 1, got %v", c.Cache.StaleMultiplier)
	}
	for name, ttl := range c.Cache.TTL {
		if ttl < 0 {
			return fmt.Errorf("cache.ttl.%s must not be negative, got %v", name, ttl)
		}
	}
	if c.Registry.ReloadTTL < 0 {
		return fmt.Errorf("registry.reload_ttl must not be negative, got %v", c.Registry.ReloadTTL)
	}
	if c.Scan.ManagementPort < 1 || c.Scan.ManagementPort > 65535 {
		return fmt.Errorf("scan.management_port must be in 1..65535, got %d", c.Scan.ManagementPort)
	}
	return nil
}
