// Package scheduler runs the periodic capacity checks that keep gauges
// current and raise alerts as resources approach exhaustion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/events"
	"github.com/chiquitav2/ipam/internal/allocator/metrics"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
	"github.com/chiquitav2/ipam/internal/shared/logger"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = time.Hour

// Forecaster is the part of the utilization tracker the monitor needs.
type Forecaster interface {
	Countries(ctx context.Context) ([]utilization.CountryUtilization, error)
	GlobalSnapshot(ctx context.Context) (*utilization.GlobalSnapshot, error)
	Forecast(ctx context.Context, resourceType utilization.ResourceType, id string) (*utilization.Forecast, error)
}

// CapacityMonitor forecasts the global space and every country holding
// regions on a fixed interval.
type CapacityMonitor struct {
	interval  time.Duration
	tracker   Forecaster
	collector *metrics.Collector
	bus       *events.Bus
	logger    *logger.Logger

	mu   sync.Mutex
	last map[string]utilization.Severity
}

// NewCapacityMonitor creates a monitor. collector and bus may be nil.
func NewCapacityMonitor(interval time.Duration, tracker Forecaster, collector *metrics.Collector, bus *events.Bus, log *logger.Logger) *CapacityMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CapacityMonitor{
		interval:  interval,
		tracker:   tracker,
		collector: collector,
		bus:       bus,
		logger:    log.WithComponent("scheduler.capacity"),
		last:      make(map[string]utilization.Severity),
	}
}

// Start runs a check immediately and then on every tick. Blocks until ctx
// is canceled.
func (m *CapacityMonitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("capacity monitor started", "interval", m.interval.String())

	m.run(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("capacity monitor stopped")
			return nil
		case <-ticker.C:
			m.run(ctx)
		}
	}
}

// run discards the result; Check logs its own failures and the next tick
// retries.
func (m *CapacityMonitor) run(ctx context.Context) {
	_, _ = m.Check(ctx)
}

// Check performs one pass and returns the forecasts it computed, global
// first. A failing country forecast is logged and skipped.
func (m *CapacityMonitor) Check(ctx context.Context) ([]utilization.Forecast, error) {
	op := m.logger.StartOp(ctx, "capacity_check")

	snap, err := m.tracker.GlobalSnapshot(ctx)
	if err != nil {
		op.Fail(err, "global snapshot failed")
		return nil, err
	}
	countries, err := m.tracker.Countries(ctx)
	if err != nil {
		op.Fail(err, "country utilization failed")
		return nil, err
	}
	m.recordUtilization(snap, countries)

	global, err := m.tracker.Forecast(ctx, utilization.ResourceGlobal, "")
	if err != nil {
		op.Fail(err, "global forecast failed")
		return nil, err
	}
	forecasts := []utilization.Forecast{*global}

	for _, c := range countries {
		if c.IsReserved || c.AllocatedRegions == 0 {
			continue
		}
		f, err := m.tracker.Forecast(ctx, utilization.ResourceCountry, c.Country)
		if err != nil {
			m.logger.WarnCtx(ctx, "country forecast failed", err, "country", c.Country)
			continue
		}
		forecasts = append(forecasts, *f)
	}

	alerts := 0
	for _, f := range forecasts {
		if m.collector != nil {
			m.collector.SetForecast(string(f.ResourceType), resourceLabel(f), f.EstimatedExhaustionDays)
		}
		if m.alert(f) {
			alerts++
		}
	}

	op.Complete("capacity check finished",
		"forecasts", len(forecasts),
		"alerts", alerts,
		"global_percentage", snap.Percentage)
	return forecasts, nil
}

func (m *CapacityMonitor) recordUtilization(snap *utilization.GlobalSnapshot, countries []utilization.CountryUtilization) {
	if m.collector == nil {
		return
	}
	m.collector.GlobalUtilization.Set(snap.Percentage)
	m.collector.HostsAllocated.Set(float64(snap.AllocatedHosts))
	for _, c := range countries {
		if c.IsReserved {
			continue
		}
		m.collector.CountryRegions.WithLabelValues(c.Country, c.Continent).Set(float64(c.AllocatedRegions))
		m.collector.CountryUtilization.WithLabelValues(c.Country, c.Continent).Set(c.Percentage)
	}
}

// alert publishes when a resource enters high or critical, or moves
// between them. Repeated checks at the same severity stay quiet.
func (m *CapacityMonitor) alert(f utilization.Forecast) bool {
	key := string(f.ResourceType) + "/" + f.ResourceID

	m.mu.Lock()
	prev := m.last[key]
	m.last[key] = f.Severity
	m.mu.Unlock()

	if !alerting(f.Severity) || prev == f.Severity {
		return false
	}
	if m.bus == nil {
		return true
	}
	err := m.bus.PublishCapacityAlert(events.CapacityAlertEvent{
		ResourceType:     string(f.ResourceType),
		ResourceID:       f.ResourceID,
		Severity:         string(f.Severity),
		DaysToExhaustion: f.EstimatedExhaustionDays,
		Percentage:       f.Percentage,
		Timestamp:        f.GeneratedAt,
	})
	if err != nil {
		m.logger.Warn("capacity alert listener failed",
			"resource_type", string(f.ResourceType),
			"resource_id", f.ResourceID,
			"error", err.Error())
	}
	return true
}

func alerting(s utilization.Severity) bool {
	return s == utilization.SeverityCritical || s == utilization.SeverityHigh
}

func resourceLabel(f utilization.Forecast) string {
	if f.ResourceType == utilization.ResourceGlobal {
		return "global"
	}
	return f.ResourceID
}
