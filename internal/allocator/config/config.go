package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

// Config defines the configuration for the allocator service.
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Log          LogConfig          `mapstructure:"log"`
	API          APIConfig          `mapstructure:"api"`
	DB           DBConfig           `mapstructure:"db"`
	Allocation   AllocationConfig   `mapstructure:"allocation"`
	AddressSpace AddressSpaceConfig `mapstructure:"address_space"`
	Forecast     ForecastConfig     `mapstructure:"forecast"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig defines the API server configuration.
type APIConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// DBConfig defines the database configuration.
type DBConfig struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// ServiceConfig defines service-level configuration options.
type ServiceConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AllocationConfig holds the slot reuse policy.
type AllocationConfig struct {
	// ReclaimRetiredRegions lets create reuse the (x, y) of a retired region.
	ReclaimRetiredRegions bool `mapstructure:"reclaim_retired_regions"`
	// ReclaimReleasedHosts lets create reuse the z of a released host.
	ReclaimReleasedHosts bool `mapstructure:"reclaim_released_hosts"`
}

// CountryConfig describes one country's slice of the X octet.
type CountryConfig struct {
	Name      string `mapstructure:"name"`
	Continent string `mapstructure:"continent"`
	XStart    int    `mapstructure:"x_start"`
	XEnd      int    `mapstructure:"x_end"`
	Reserved  bool   `mapstructure:"reserved"`
}

// AddressSpaceConfig overrides the built-in country table. An empty
// Countries list means the built-in table is used.
type AddressSpaceConfig struct {
	ReservedOctets []int           `mapstructure:"reserved_octets"`
	ReservedBlocks []string        `mapstructure:"reserved_blocks"` // "X.Y"
	Countries      []CountryConfig `mapstructure:"countries"`
}

// ForecastConfig controls capacity forecasting.
type ForecastConfig struct {
	Window   time.Duration `mapstructure:"window"`
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Block is a parsed reserved (x, y) pair.
type Block struct {
	X int
	Y int
}

// ParseBlock parses "X.Y" into a Block.
func ParseBlock(s string) (Block, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Block{}, fmt.Errorf("block %q must have the form X.Y", s)
	}

	x, err := strconv.Atoi(parts[0])
	if err != nil || x < 0 || x > 255 {
		return Block{}, fmt.Errorf("block %q has invalid x octet", s)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil || y < 0 || y > 255 {
		return Block{}, fmt.Errorf("block %q has invalid y octet", s)
	}
	return Block{X: x, Y: y}, nil
}

// Blocks returns the parsed reserved blocks. Validate has already
// rejected malformed entries.
func (a AddressSpaceConfig) Blocks() []Block {
	blocks := make([]Block, 0, len(a.ReservedBlocks))
	for _, s := range a.ReservedBlocks {
		if b, err := ParseBlock(s); err == nil {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// Validate validates the configuration for correctness and completeness
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return apperrors.NewConfigError("log.level", fmt.Sprintf("invalid level %q (must be debug, info, warn, or error)", c.Log.Level), nil)
	}

	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return apperrors.NewConfigError("log.format", fmt.Sprintf("invalid format %q (must be json or text)", c.Log.Format), nil)
	}

	if c.Service.ShutdownTimeout > 0 && c.Service.ShutdownTimeout < time.Second {
		return apperrors.NewConfigError("service.shutdown_timeout", "must be at least 1 second", nil)
	}

	if c.API.RateLimitRPS < 0 || c.API.RateLimitBurst < 0 {
		return apperrors.NewConfigError("api.rate_limit_rps", "rate limit values must not be negative", nil)
	}

	if c.Forecast.Window > 0 && c.Forecast.Window < 24*time.Hour {
		return apperrors.NewConfigError("forecast.window", "must be at least 24h", nil)
	}
	if c.Forecast.Interval > 0 && c.Forecast.Interval < time.Minute {
		return apperrors.NewConfigError("forecast.interval", "must be at least 1 minute", nil)
	}

	for _, octet := range c.AddressSpace.ReservedOctets {
		if octet < 0 || octet > 255 {
			return apperrors.NewConfigError("address_space.reserved_octets", fmt.Sprintf("octet %d out of range", octet), nil)
		}
	}
	for _, s := range c.AddressSpace.ReservedBlocks {
		if _, err := ParseBlock(s); err != nil {
			return apperrors.NewConfigError("address_space.reserved_blocks", "invalid reserved block", err)
		}
	}
	for i, country := range c.AddressSpace.Countries {
		if strings.TrimSpace(country.Name) == "" {
			return apperrors.NewConfigError(fmt.Sprintf("address_space.countries[%d].name", i), "name is required", nil)
		}
		if country.XStart < 0 || country.XEnd > 255 || country.XStart > country.XEnd {
			return apperrors.NewConfigError(fmt.Sprintf("address_space.countries[%d]", i),
				fmt.Sprintf("invalid x range [%d,%d] for %s", country.XStart, country.XEnd, country.Name), nil)
		}
	}

	c.setDefaults()

	return nil
}

// setDefaults sets default values for configuration fields that are not set.
// Boolean policy flags are defaulted by the loader since false is meaningful.
func (c *Config) setDefaults() {
	if c.Service.ShutdownTimeout <= 0 {
		c.Service.ShutdownTimeout = 30 * time.Second
	}

	if c.DB.Path == "" {
		c.DB.Path = "./data/ipam.db"
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 25
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 300
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if len(c.API.CORSOrigins) == 0 {
		c.API.CORSOrigins = []string{"*"}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Forecast.Window <= 0 {
		c.Forecast.Window = 30 * 24 * time.Hour
	}
	if c.Forecast.Interval <= 0 {
		c.Forecast.Interval = 15 * time.Minute
	}

	if c.AddressSpace.ReservedOctets == nil {
		c.AddressSpace.ReservedOctets = []int{0, 255}
	}
}
