package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, []string{"*"}, cfg.API.CORSOrigins)
	assert.Equal(t, "./data/ipam.db", cfg.DB.Path)
	assert.Equal(t, 30*time.Second, cfg.Service.ShutdownTimeout)
	assert.Equal(t, 720*time.Hour, cfg.Forecast.Window)
	assert.Equal(t, 15*time.Minute, cfg.Forecast.Interval)
	assert.True(t, cfg.Allocation.ReclaimRetiredRegions)
	assert.True(t, cfg.Allocation.ReclaimReleasedHosts)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []int{0, 255}, cfg.AddressSpace.ReservedOctets)
	assert.Empty(t, cfg.AddressSpace.Countries)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IPAM_LOG_LEVEL", "debug")
	t.Setenv("IPAM_DB_PATH", "/tmp/custom.db")
	t.Setenv("IPAM_ALLOCATION_RECLAIM_RETIRED_REGIONS", "false")
	t.Setenv("IPAM_FORECAST_WINDOW", "48h")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/custom.db", cfg.DB.Path)
	assert.False(t, cfg.Allocation.ReclaimRetiredRegions)
	assert.True(t, cfg.Allocation.ReclaimReleasedHosts)
	assert.Equal(t, 48*time.Hour, cfg.Forecast.Window)
}

func TestLoadWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
log:
  level: warn
  format: text
allocation:
  reclaim_released_hosts: false
address_space:
  reserved_octets: [0, 255]
  reserved_blocks: ["50.0", "1.255"]
  countries:
    - name: Alpha
      continent: Testland
      x_start: 1
      x_end: 127
    - name: Beta
      continent: Testland
      x_start: 128
      x_end: 254
      reserved: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Allocation.ReclaimReleasedHosts)
	assert.True(t, cfg.Allocation.ReclaimRetiredRegions)

	require.Len(t, cfg.AddressSpace.Countries, 2)
	assert.Equal(t, CountryConfig{Name: "Beta", Continent: "Testland", XStart: 128, XEnd: 254, Reserved: true}, cfg.AddressSpace.Countries[1])
	assert.Equal(t, []Block{{X: 50, Y: 0}, {X: 1, Y: 255}}, cfg.AddressSpace.Blocks())
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid empty config", mutate: func(c *Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "short shutdown", mutate: func(c *Config) { c.Service.ShutdownTimeout = time.Millisecond }, wantErr: "service.shutdown_timeout"},
		{name: "short forecast window", mutate: func(c *Config) { c.Forecast.Window = time.Hour }, wantErr: "forecast.window"},
		{name: "reserved octet out of range", mutate: func(c *Config) { c.AddressSpace.ReservedOctets = []int{256} }, wantErr: "reserved_octets"},
		{name: "malformed reserved block", mutate: func(c *Config) { c.AddressSpace.ReservedBlocks = []string{"10"} }, wantErr: "reserved_blocks"},
		{
			name: "inverted country range",
			mutate: func(c *Config) {
				c.AddressSpace.Countries = []CountryConfig{{Name: "X", XStart: 9, XEnd: 3}}
			},
			wantErr: "countries[0]",
		},
		{name: "negative rate limit", mutate: func(c *Config) { c.API.RateLimitRPS = -1 }, wantErr: "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 20, NewInternalDefaults().PaginationDefaults().DefaultPageSize)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}

func TestParseBlock(t *testing.T) {
	b, err := ParseBlock(" 12.34 ")
	require.NoError(t, err)
	assert.Equal(t, Block{X: 12, Y: 34}, b)

	for _, bad := range []string{"", "1", "1.2.3", "a.1", "1.256", "-1.0"} {
		_, err := ParseBlock(bad)
		assert.Error(t, err, bad)
	}
}

func TestPaginationDefaults_NormalizePage(t *testing.T) {
	p := NewInternalDefaults().PaginationDefaults()

	page, size := p.NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	page, size = p.NormalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, size)
}
