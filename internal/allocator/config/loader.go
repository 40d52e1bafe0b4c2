package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. IPAM_DB_PATH.
const EnvPrefix = "IPAM"

// Loader handles configuration loading from YAML files and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// NewLoaderWithViper uses an existing viper instance, typically one with
// CLI flags already bound.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from files and environment variables.
// ENV variables override values from the YAML file.
func (l *Loader) Load() (*Config, error) {
	if l.v.ConfigFileUsed() == "" {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath("/etc/ipam")
		l.v.AddConfigPath("$HOME/.ipam")
		l.v.AddConfigPath(".")
	}

	l.setupEnv()
	l.setDefaults()

	// Config file is optional
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setupEnv() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	l.v.SetDefault("api.listen_addr", ":8080")
	l.v.SetDefault("api.cors_origins", []string{"*"})
	l.v.SetDefault("api.rate_limit_rps", 50.0)
	l.v.SetDefault("api.rate_limit_burst", 100)

	l.v.SetDefault("db.path", "./data/ipam.db")
	l.v.SetDefault("db.max_open_conns", 25)
	l.v.SetDefault("db.max_idle_conns", 5)
	l.v.SetDefault("db.conn_max_lifetime", 300)

	l.v.SetDefault("service.shutdown_timeout", "30s")

	l.v.SetDefault("allocation.reclaim_retired_regions", true)
	l.v.SetDefault("allocation.reclaim_released_hosts", true)

	l.v.SetDefault("address_space.reserved_octets", []int{0, 255})

	l.v.SetDefault("forecast.window", "720h")
	l.v.SetDefault("forecast.interval", "15m")

	l.v.SetDefault("metrics.enabled", true)
}

// LoadWithPath loads configuration from a specific file path
func LoadWithPath(configPath string) (*Config, error) {
	loader := NewLoader()
	loader.v.SetConfigFile(configPath)
	return loader.Load()
}

// LoadFromEnv loads configuration only from defaults and environment variables
func LoadFromEnv() (*Config, error) {
	loader := NewLoader()
	loader.setupEnv()
	loader.setDefaults()
	return loader.unmarshal()
}
