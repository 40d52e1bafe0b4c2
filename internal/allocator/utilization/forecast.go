package utilization

import (
	"math"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/db"
)

// Severity grades how soon a resource runs out.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severity thresholds in days to exhaustion.
const (
	criticalDays = 30
	highDays     = 90
	mediumDays   = 180
)

// ResourceType selects what a forecast is about.
type ResourceType string

const (
	// ResourceRegion forecasts hosts inside one region.
	ResourceRegion ResourceType = "region"
	// ResourceCountry forecasts regions inside one country.
	ResourceCountry ResourceType = "country"
	// ResourceGlobal forecasts regions across every country.
	ResourceGlobal ResourceType = "global"
)

// Forecast is a linear projection of when a resource fills up.
type Forecast struct {
	ResourceType            ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID              string       `json:"resource_id" yaml:"resource_id"`
	DailyGrowthRate         float64      `json:"daily_growth_rate" yaml:"daily_growth_rate"`
	EstimatedExhaustionDays *float64     `json:"estimated_exhaustion_days" yaml:"estimated_exhaustion_days"`
	Severity                Severity     `json:"severity" yaml:"severity"`
	WindowDays              int          `json:"window_days" yaml:"window_days"`
	Available               int          `json:"available" yaml:"available"`
	Percentage              float64      `json:"percentage" yaml:"percentage"`
	GeneratedAt             time.Time    `json:"generated_at" yaml:"generated_at"`
}

// Classify maps days to exhaustion onto a severity. No projected
// exhaustion is low.
func Classify(days *float64) Severity {
	switch {
	case days == nil:
		return SeverityLow
	case *days < criticalDays:
		return SeverityCritical
	case *days < highDays:
		return SeverityHigh
	case *days < mediumDays:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DailySeries buckets allocation events into days since start and returns
// the cumulative net allocation per day. Creates add one; releases and
// retirements subtract one.
func DailySeries(rows []db.ListAllocationEventsRow, start time.Time, days int) []float64 {
	if days < 1 {
		return nil
	}
	net := make([]float64, days)
	for _, r := range rows {
		idx := int(r.Timestamp.Sub(start) / (24 * time.Hour))
		if idx < 0 {
			continue
		}
		if idx >= days {
			idx = days - 1
		}
		switch r.ActionType {
		case "create":
			net[idx]++
		case "release", "retire":
			net[idx]--
		}
	}

	cumulative := make([]float64, days)
	var sum float64
	for i, n := range net {
		sum += n
		cumulative[i] = sum
	}
	return cumulative
}

// Slope is the least-squares slope of series against its index.
func Slope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}

	meanX := (n - 1) / 2
	var meanY float64
	for _, y := range series {
		meanY += y
	}
	meanY /= n

	var num, den float64
	for i, y := range series {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Project returns the days until available reaches zero at rate per day,
// or nil when the resource is not growing. A full resource is already
// exhausted.
func Project(available int64, rate float64) *float64 {
	if available <= 0 {
		zero := 0.0
		return &zero
	}
	if rate <= 0 {
		return nil
	}
	days := round(float64(available)/rate, 1)
	return &days
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
