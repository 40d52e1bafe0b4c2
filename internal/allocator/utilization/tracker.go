// Package utilization derives read-only capacity views and forecasts from
// region and host state. Nothing here takes a scope lock; results may be a
// moment stale.
package utilization

import (
	"context"
	"strings"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/addrspace"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	"github.com/chiquitav2/ipam/internal/allocator/region"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/internal/shared/models"
)

// DefaultWindow is the trailing history a forecast fits over.
const DefaultWindow = 30 * 24 * time.Hour

// CountryUtilization is region usage in one country.
type CountryUtilization struct {
	Country          string  `json:"country" yaml:"country"`
	Continent        string  `json:"continent" yaml:"continent"`
	XStart           int     `json:"x_start" yaml:"x_start"`
	XEnd             int     `json:"x_end" yaml:"x_end"`
	IsReserved       bool    `json:"is_reserved" yaml:"is_reserved"`
	AllocatedRegions int     `json:"allocated_regions" yaml:"allocated_regions"`
	TotalCapacity    int     `json:"total_capacity" yaml:"total_capacity"`
	Available        int     `json:"available" yaml:"available"`
	Percentage       float64 `json:"percentage" yaml:"percentage"`
	AllocatedHosts   int     `json:"allocated_hosts" yaml:"allocated_hosts"`
}

// ContinentUtilization aggregates the countries of one continent.
type ContinentUtilization struct {
	Continent        string  `json:"continent" yaml:"continent"`
	Countries        int     `json:"countries" yaml:"countries"`
	AllocatedRegions int     `json:"allocated_regions" yaml:"allocated_regions"`
	TotalCapacity    int     `json:"total_capacity" yaml:"total_capacity"`
	Percentage       float64 `json:"percentage" yaml:"percentage"`
}

// GlobalSnapshot summarizes the whole address space.
type GlobalSnapshot struct {
	TotalCountries       int                    `json:"total_countries" yaml:"total_countries"`
	AllocatedCountries   int                    `json:"allocated_countries" yaml:"allocated_countries"`
	TotalRegionsCapacity int                    `json:"total_regions_capacity" yaml:"total_regions_capacity"`
	AllocatedRegions     int                    `json:"allocated_regions" yaml:"allocated_regions"`
	TotalHostsCapacity   int                    `json:"total_hosts_capacity" yaml:"total_hosts_capacity"`
	AllocatedHosts       int                    `json:"allocated_hosts" yaml:"allocated_hosts"`
	Percentage           float64                `json:"percentage" yaml:"percentage"`
	HostPercentage       float64                `json:"host_percentage" yaml:"host_percentage"`
	ByContinent          []ContinentUtilization `json:"by_continent" yaml:"by_continent"`
	GeneratedAt          time.Time              `json:"generated_at" yaml:"generated_at"`
}

// Tracker computes utilization views.
type Tracker struct {
	store  db.Store
	space  *addrspace.Space
	window time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. A non-positive window uses DefaultWindow.
func NewTracker(store db.Store, space *addrspace.Space, window time.Duration, log *logger.Logger) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		store:  store,
		space:  space,
		window: window,
		logger: log.WithComponent("utilization"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Space exposes the address space the tracker reports against.
func (t *Tracker) Space() *addrspace.Space {
	return t.space
}

// CountryUtilization reports region usage for one country. Reserved
// countries have zero capacity.
func (t *Tracker) CountryUtilization(ctx context.Context, name string) (*CountryUtilization, error) {
	country, err := t.space.Country(name)
	if err != nil {
		return nil, err
	}
	all, err := t.Countries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Country == country.Name {
			return &all[i], nil
		}
	}
	return nil, apperrors.DomainErrCountryNotFound.WithMetadata("country", name)
}

// Countries reports every country, reserved included, ordered by X.
func (t *Tracker) Countries(ctx context.Context) ([]CountryUtilization, error) {
	rows, err := t.store.CountActiveRegionsByCountry(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("count regions by country", err)
	}
	counts := make(map[string]db.CountActiveRegionsByCountryRow, len(rows))
	for _, r := range rows {
		counts[strings.ToLower(r.Country)] = r
	}

	countries := t.space.Countries()
	out := make([]CountryUtilization, 0, len(countries))
	for _, c := range countries {
		slots, err := t.space.RegionSlots(c.Name)
		if err != nil {
			return nil, err
		}
		row := counts[strings.ToLower(c.Name)]
		available := int64(slots) - row.Regions
		if available < 0 {
			available = 0
		}
		out = append(out, CountryUtilization{
			Country:          c.Name,
			Continent:        c.Continent,
			XStart:           c.XStart,
			XEnd:             c.XEnd,
			IsReserved:       c.IsReserved,
			AllocatedRegions: int(row.Regions),
			TotalCapacity:    slots,
			Available:        int(available),
			Percentage:       models.Percentage(row.Regions, int64(slots)),
			AllocatedHosts:   int(row.Hosts),
		})
	}
	return out, nil
}

// RegionUtilization reports host usage for one region.
func (t *Tracker) RegionUtilization(ctx context.Context, id string) (*region.Utilization, error) {
	row, err := t.region(ctx, id)
	if err != nil {
		return nil, err
	}
	allocated, err := t.store.CountActiveHostsInRegion(ctx, id)
	if err != nil {
		return nil, apperrors.NewPersistenceError("count region hosts", err)
	}
	return region.Compute(row, allocated), nil
}

func (t *Tracker) region(ctx context.Context, id string) (db.Region, error) {
	row, err := t.store.GetRegion(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Region{}, apperrors.DomainErrRegionNotFound.WithMetadata("region_id", id)
		}
		return db.Region{}, apperrors.NewPersistenceError("get region", err)
	}
	return row, nil
}

// GlobalSnapshot summarizes capacity across all countries. Only
// non-reserved countries are counted.
func (t *Tracker) GlobalSnapshot(ctx context.Context) (*GlobalSnapshot, error) {
	countries, err := t.Countries(ctx)
	if err != nil {
		return nil, err
	}

	snap := &GlobalSnapshot{ByContinent: []ContinentUtilization{}, GeneratedAt: t.now()}
	continents := make(map[string]int)
	for _, c := range countries {
		i, ok := continents[c.Continent]
		if !ok {
			i = len(snap.ByContinent)
			continents[c.Continent] = i
			snap.ByContinent = append(snap.ByContinent, ContinentUtilization{Continent: c.Continent})
		}
		if c.IsReserved {
			continue
		}

		cont := &snap.ByContinent[i]
		cont.Countries++
		cont.AllocatedRegions += c.AllocatedRegions
		cont.TotalCapacity += c.TotalCapacity

		snap.TotalCountries++
		if c.AllocatedRegions > 0 {
			snap.AllocatedCountries++
		}
		snap.TotalRegionsCapacity += c.TotalCapacity
		snap.AllocatedRegions += c.AllocatedRegions
		snap.AllocatedHosts += c.AllocatedHosts
	}

	// Continents made only of reserved countries carry no capacity.
	kept := snap.ByContinent[:0]
	for _, c := range snap.ByContinent {
		if c.Countries == 0 {
			continue
		}
		c.Percentage = models.Percentage(int64(c.AllocatedRegions), int64(c.TotalCapacity))
		kept = append(kept, c)
	}
	snap.ByContinent = kept

	snap.TotalHostsCapacity = snap.AllocatedRegions * addrspace.HostsPerRegion()
	snap.Percentage = models.Percentage(int64(snap.AllocatedRegions), int64(snap.TotalRegionsCapacity))
	snap.HostPercentage = models.Percentage(int64(snap.AllocatedHosts), int64(snap.TotalHostsCapacity))
	return snap, nil
}

// Forecast projects exhaustion of a region (hosts), a country (regions)
// or the whole space (regions). id is ignored for global.
func (t *Tracker) Forecast(ctx context.Context, resourceType ResourceType, id string) (*Forecast, error) {
	now := t.now()
	since := now.Add(-t.window)

	var (
		auditType  string
		scope      string
		available  int64
		percentage float64
	)

	switch resourceType {
	case ResourceRegion:
		row, err := t.region(ctx, id)
		if err != nil {
			return nil, err
		}
		if row.Status != db.RegionStatusActive {
			return nil, apperrors.NewUtilizationError(apperrors.ErrCodeInvalidState, "retired regions have no forecast", nil).
				WithMetadata("region_id", id)
		}
		allocated, err := t.store.CountActiveHostsInRegion(ctx, id)
		if err != nil {
			return nil, apperrors.NewPersistenceError("count region hosts", err)
		}
		u := region.Compute(row, allocated)
		auditType, scope = "host", id
		available, percentage = int64(u.Available), u.Percentage

	case ResourceCountry:
		c, err := t.CountryUtilization(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.IsReserved {
			return nil, apperrors.NewValidationError(apperrors.DomainUtilization, "resource_id", "reserved countries have no forecast").
				WithMetadata("country", c.Country)
		}
		auditType, scope, id = "region", c.Country, c.Country
		available, percentage = int64(c.Available), c.Percentage

	case ResourceGlobal:
		snap, err := t.GlobalSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		auditType, scope, id = "region", "", ""
		available = int64(snap.TotalRegionsCapacity - snap.AllocatedRegions)
		percentage = snap.Percentage

	default:
		return nil, apperrors.NewValidationError(apperrors.DomainUtilization, "resource_type", "resource_type must be region, country or global").
			WithMetadata("resource_type", string(resourceType))
	}

	rows, err := t.store.ListAllocationEvents(ctx, db.ListAllocationEventsParams{
		ResourceType: auditType,
		ScopeID:      scope,
		Since:        since,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list allocation events", err)
	}

	days := int(t.window / (24 * time.Hour))
	rate := Slope(DailySeries(rows, since, days))
	exhaustion := Project(available, rate)

	f := &Forecast{
		ResourceType:            resourceType,
		ResourceID:              id,
		DailyGrowthRate:         round(rate, 4),
		EstimatedExhaustionDays: exhaustion,
		Severity:                Classify(exhaustion),
		WindowDays:              days,
		Available:               int(available),
		Percentage:              percentage,
		GeneratedAt:             now,
	}

	t.logger.Debug("forecast computed",
		"resource_type", string(resourceType),
		"resource_id", id,
		"events", len(rows),
		"daily_growth_rate", f.DailyGrowthRate,
		"severity", string(f.Severity))
	return f, nil
}
