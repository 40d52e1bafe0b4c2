package allocator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/config"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	"github.com/chiquitav2/ipam/internal/allocator/host"
	"github.com/chiquitav2/ipam/internal/allocator/region"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		API:        config.APIConfig{ListenAddr: "127.0.0.1:0"},
		Allocation: config.AllocationConfig{ReclaimRetiredRegions: true, ReclaimReleasedHosts: true},
		Metrics:    config.MetricsConfig{Enabled: true},
		Forecast:   config.ForecastConfig{Interval: time.Hour},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	_, store := db.NewTestDB(t)
	s, err := NewServiceWithStore(cfg, store, logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestService_WiresComponents(t *testing.T) {
	s := newTestService(t, testConfig(t))
	ctx := context.Background()

	r, err := s.Regions.Create(ctx, region.CreateRequest{Country: "India", RegionName: "mumbai"}, "ops")
	require.NoError(t, err)
	_, err = s.Hosts.Create(ctx, r.ID, host.CreateRequest{Hostname: "edge-01"}, "ops")
	require.NoError(t, err)

	// Events reach the collector after commit.
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Allocations.WithLabelValues("region", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Allocations.WithLabelValues("host", "create")))

	forecasts, err := s.Monitor().Check(ctx)
	require.NoError(t, err)
	require.Len(t, forecasts, 2)
	assert.Equal(t, utilization.ResourceGlobal, forecasts[0].ResourceType)
	assert.Equal(t, "India", forecasts[1].ResourceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().HostsAllocated))

	rec := httptest.NewRecorder()
	s.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/regions/"+r.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestService_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	s := newTestService(t, cfg)
	assert.Nil(t, s.Metrics())

	rec := httptest.NewRecorder()
	s.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestService_CustomAddressSpace(t *testing.T) {
	cfg := testConfig(t)
	cfg.AddressSpace.Countries = []config.CountryConfig{
		{Name: "Alpha", Continent: "Test", XStart: 1, XEnd: 2},
		{Name: "Rest", Continent: "Test", XStart: 3, XEnd: 254, Reserved: true},
	}
	cfg.AddressSpace.ReservedBlocks = []string{"1.0"}
	s := newTestService(t, cfg)

	assert.Equal(t, 2*256-1, s.Space().TotalRegionSlots())
	r, err := s.Regions.Create(context.Background(), region.CreateRequest{Country: "alpha", RegionName: "a"}, "ops")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.0/24", r.CIDR)
}

func TestService_InvalidAddressSpace(t *testing.T) {
	cfg := testConfig(t)
	cfg.AddressSpace.Countries = []config.CountryConfig{
		{Name: "A", Continent: "Test", XStart: 1, XEnd: 10},
		{Name: "B", Continent: "Test", XStart: 5, XEnd: 20},
	}
	_, store := db.NewTestDB(t)
	_, err := NewServiceWithStore(cfg, store, logger.NewNop())
	assert.Error(t, err)
}

func TestService_RunStopsOnCancel(t *testing.T) {
	s := newTestService(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.NoError(t, s.Close())
}
