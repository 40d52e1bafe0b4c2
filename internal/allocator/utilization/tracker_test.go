package utilization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/addrspace"
	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, space *addrspace.Space) (*Tracker, *db.SQLStore) {
	t.Helper()
	_, store := db.NewTestDB(t)
	tr := NewTracker(store, space, 30*24*time.Hour, logger.NewNop())
	tr.now = func() time.Time { return fixedNow }
	return tr, store
}

// smallSpace leaves ten free blocks in "Tiny".
func smallSpace(t *testing.T) *addrspace.Space {
	t.Helper()
	var reserved []addrspace.Block
	for y := 0; y < 246; y++ {
		reserved = append(reserved, addrspace.Block{X: 1, Y: y})
	}
	space, err := addrspace.New([]addrspace.Country{
		{Name: "Tiny", Continent: "Test", XStart: 1, XEnd: 1},
		{Name: "Rest", Continent: "Reserved", XStart: 2, XEnd: 254, IsReserved: true},
	}, []int{0, 255}, reserved)
	require.NoError(t, err)
	return space
}

func recordAt(t *testing.T, store db.Store, action audit.Action, resource audit.ResourceType, scope string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	err := store.ExecTx(ctx, func(q *db.Queries) error {
		_, err := audit.Record(ctx, q, audit.Entry{
			ActionType:   action,
			ResourceType: resource,
			ResourceID:   fmt.Sprintf("%s-%d", resource, at.UnixNano()),
			ScopeID:      scope,
			Reason:       "history",
			Timestamp:    at,
		})
		return err
	})
	require.NoError(t, err)
}

func TestCountries(t *testing.T) {
	tr, store := newTracker(t, addrspace.Default())
	db.SeedRegion(t, store, "India", 50, 0)
	db.SeedRegion(t, store, "India", 50, 1)

	india, err := tr.CountryUtilization(context.Background(), "india")
	require.NoError(t, err)
	assert.Equal(t, CountryUtilization{
		Country:          "India",
		Continent:        "Asia",
		XStart:           50,
		XEnd:             50,
		AllocatedRegions: 2,
		TotalCapacity:    256,
		Available:        254,
		Percentage:       0.78,
	}, *india)

	reserved, err := tr.CountryUtilization(context.Background(), "Unassigned")
	require.NoError(t, err)
	assert.True(t, reserved.IsReserved)
	assert.Zero(t, reserved.TotalCapacity)
	assert.Zero(t, reserved.Percentage)

	_, err = tr.CountryUtilization(context.Background(), "Atlantis")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	all, err := tr.Countries(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(addrspace.DefaultCountries()))
	assert.Equal(t, "United States", all[0].Country)
}

func TestGlobalSnapshot(t *testing.T) {
	tr, store := newTracker(t, addrspace.Default())
	db.SeedRegion(t, store, "India", 50, 0)
	db.SeedRegion(t, store, "India", 50, 1)
	us := db.SeedRegion(t, store, "United States", 1, 0)
	for z := int64(1); z <= 3; z++ {
		db.SeedHost(t, store, us, z, fmt.Sprintf("web-%02d", z))
	}

	snap, err := tr.GlobalSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 26, snap.TotalCountries)
	assert.Equal(t, 2, snap.AllocatedCountries)
	assert.Equal(t, 150*256, snap.TotalRegionsCapacity)
	assert.Equal(t, 3, snap.AllocatedRegions)
	assert.Equal(t, 3*254, snap.TotalHostsCapacity)
	assert.Equal(t, 3, snap.AllocatedHosts)
	assert.Equal(t, 0.01, snap.Percentage)
	assert.Equal(t, 0.39, snap.HostPercentage)
	assert.Equal(t, fixedNow, snap.GeneratedAt)

	require.Len(t, snap.ByContinent, 6)
	assert.Equal(t, "North America", snap.ByContinent[0].Continent)
	assert.Equal(t, 3, snap.ByContinent[0].Countries)
	assert.Equal(t, 1, snap.ByContinent[0].AllocatedRegions)
	for _, c := range snap.ByContinent {
		assert.NotEqual(t, "Reserved", c.Continent)
	}
}

func TestRegionUtilization(t *testing.T) {
	tr, store := newTracker(t, addrspace.Default())
	r := db.SeedRegion(t, store, "India", 50, 0)
	db.SeedHost(t, store, r, 1, "a1")

	u, err := tr.RegionUtilization(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Allocated)
	assert.Equal(t, 253, u.Available)

	_, err = tr.RegionUtilization(context.Background(), "missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))
}

func TestForecast_CountryGrowingOnePerDay(t *testing.T) {
	tr, store := newTracker(t, smallSpace(t))
	since := fixedNow.Add(-30 * 24 * time.Hour)
	for d := 0; d < 30; d++ {
		recordAt(t, store, audit.ActionCreate, audit.ResourceRegion, "Tiny", since.Add(time.Duration(d)*24*time.Hour+time.Hour))
	}
	// Outside the window, ignored.
	recordAt(t, store, audit.ActionCreate, audit.ResourceRegion, "Tiny", since.Add(-48*time.Hour))

	f, err := tr.Forecast(context.Background(), ResourceCountry, "tiny")
	require.NoError(t, err)
	assert.Equal(t, ResourceCountry, f.ResourceType)
	assert.Equal(t, "Tiny", f.ResourceID)
	assert.InDelta(t, 1.0, f.DailyGrowthRate, 1e-9)
	require.NotNil(t, f.EstimatedExhaustionDays)
	assert.InDelta(t, 10.0, *f.EstimatedExhaustionDays, 1e-9)
	assert.Equal(t, SeverityCritical, f.Severity)
	assert.Equal(t, 30, f.WindowDays)
	assert.Equal(t, 10, f.Available)
}

func TestForecast_RegionNetsReleases(t *testing.T) {
	tr, store := newTracker(t, addrspace.Default())
	r := db.SeedRegion(t, store, "India", 50, 0)
	since := fixedNow.Add(-30 * 24 * time.Hour)
	for d := 0; d < 30; d++ {
		day := since.Add(time.Duration(d) * 24 * time.Hour)
		recordAt(t, store, audit.ActionCreate, audit.ResourceHost, r.ID, day.Add(time.Hour))
		recordAt(t, store, audit.ActionCreate, audit.ResourceHost, r.ID, day.Add(2*time.Hour))
		recordAt(t, store, audit.ActionRelease, audit.ResourceHost, r.ID, day.Add(3*time.Hour))
	}
	// Another region's history does not count.
	recordAt(t, store, audit.ActionCreate, audit.ResourceHost, "other", since.Add(time.Hour))

	f, err := tr.Forecast(context.Background(), ResourceRegion, r.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.DailyGrowthRate, 1e-9)
	require.NotNil(t, f.EstimatedExhaustionDays)
	assert.InDelta(t, 254.0, *f.EstimatedExhaustionDays, 1e-9)
	assert.Equal(t, SeverityLow, f.Severity)
}

func TestForecast_NoHistory(t *testing.T) {
	tr, _ := newTracker(t, addrspace.Default())

	f, err := tr.Forecast(context.Background(), ResourceGlobal, "")
	require.NoError(t, err)
	assert.Zero(t, f.DailyGrowthRate)
	assert.Nil(t, f.EstimatedExhaustionDays)
	assert.Equal(t, SeverityLow, f.Severity)
	assert.Equal(t, 150*256, f.Available)
}

func TestForecast_Errors(t *testing.T) {
	tr, store := newTracker(t, addrspace.Default())
	ctx := context.Background()

	_, err := tr.Forecast(ctx, "planet", "")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = tr.Forecast(ctx, ResourceCountry, "Unassigned")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = tr.Forecast(ctx, ResourceCountry, "Atlantis")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	_, err = tr.Forecast(ctx, ResourceRegion, "missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	r := db.SeedRegion(t, store, "India", 50, 0)
	_, err = store.RetireRegion(ctx, db.RetireRegionParams{RetiredAt: fixedNow, ID: r.ID})
	require.NoError(t, err)
	_, err = tr.Forecast(ctx, ResourceRegion, r.ID)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeInvalidState))
}
